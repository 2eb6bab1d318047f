package inject

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// Embedded DOM automation scripts evaluated inside the destination tab.
// Each file is a single function expression taking one config object;
// callJS builds the invocation with the config marshaled as JSON, which
// also takes care of all escaping.

//go:embed scripts/probe_composer.js
var probeComposerScript string

//go:embed scripts/fill_composer.js
var fillComposerScript string

//go:embed scripts/click_send.js
var clickSendScript string

//go:embed scripts/url_payload.js
var urlPayloadScript string

func callJS(script string, cfg any) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode script config: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", script, b), nil
}
