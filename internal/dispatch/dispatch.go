// Package dispatch is the send-flow orchestrator: it resolves the active
// prompt and enabled destinations, builds the final payload, opens one tab
// per destination, and arranges delivery to the injector. Destinations run
// concurrently and fail independently; one broken pipeline never touches a
// sibling or the orchestrator itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/tabsend/cli/internal/adapters"
	"github.com/tabsend/cli/internal/inject"
	"github.com/tabsend/cli/internal/settings"
	"github.com/tabsend/cli/internal/taskstore"
	"github.com/tabsend/cli/pkg/retry"
)

// GenericPrompt is the hard-coded fallback instruction used when the
// active template cannot be resolved at all.
const GenericPrompt = "请总结以下网页的内容：\n"

const (
	// DefaultMaxDeliveryAttempts bounds redelivery to a tab whose script
	// context is not listening yet.
	DefaultMaxDeliveryAttempts = 10

	// DefaultDeliveryRetryDelay is the fixed pause between attempts.
	DefaultDeliveryRetryDelay = 500 * time.Millisecond

	// DefaultMaxURLPayload caps URL-embedded payloads; longer ones go
	// through the task store instead.
	DefaultMaxURLPayload = 1800
)

// ErrUnsupportedSource means the source tab URL is missing or not
// http(s); the flow aborts before any side effect.
var ErrUnsupportedSource = errors.New("dispatch: source url must be http or https")

// Opener turns a destination URL into a loaded page. Implemented by
// *browser.Session.
type Opener interface {
	OpenTab(ctx context.Context, rawURL string) (inject.Page, error)
}

// TaskSink parks payloads for URL handoff; typically *taskstore.Store.
type TaskSink interface {
	Put(destinationID, finalText string) (string, error)
}

// Result is the outcome for one destination.
type Result struct {
	Destination string
	URL         string
	Skipped     bool
	Err         error
}

// Engine wires the stores, the browser session, and the injector into the
// send flow.
type Engine struct {
	Store    *settings.Store
	Opener   Opener   // nil enables the degraded system-browser mode
	Injector *inject.Injector
	Tasks    TaskSink // optional
	Log      *slog.Logger

	// PromptOverride, when non-empty, is used instead of the stored
	// active template.
	PromptOverride string

	MaxDeliveryAttempts int
	DeliveryRetryDelay  time.Duration
	MaxURLPayload       int
}

// New returns an engine with production retry settings.
func New(store *settings.Store, opener Opener, injector *inject.Injector, tasks TaskSink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Store:               store,
		Opener:              opener,
		Injector:            injector,
		Tasks:               tasks,
		Log:                 log,
		MaxDeliveryAttempts: DefaultMaxDeliveryAttempts,
		DeliveryRetryDelay:  DefaultDeliveryRetryDelay,
		MaxURLPayload:       DefaultMaxURLPayload,
	}
}

// BuildPayload concatenates the template content and the source URL. No
// separator is inserted: whatever whitespace the template author put at the
// end of the content is the whole delimiter. This is a compatibility
// contract, not an oversight.
func BuildPayload(templateContent, sourceURL string) string {
	return templateContent + sourceURL
}

// Run executes the send flow for one source URL against the destinations
// in overrideTargets (or the stored settings when empty). The returned
// error is non-nil only for input validation; per-destination failures are
// reported in the results.
func (e *Engine) Run(ctx context.Context, sourceURL string, overrideTargets []string) ([]Result, error) {
	if !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, sourceURL)
	}

	finalText := BuildPayload(e.resolvePromptContent(), sourceURL)
	targets := e.resolveAdapters(overrideTargets)

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, a := range targets {
		wg.Add(1)
		go func(i int, a *adapters.Adapter) {
			defer wg.Done()
			results[i] = e.dispatchOne(ctx, a, finalText)
		}(i, a)
	}
	wg.Wait()

	return results, nil
}

// Plan resolves the payload and destination set without opening
// anything, for dry runs.
func (e *Engine) Plan(sourceURL string, overrideTargets []string) (string, []*adapters.Adapter) {
	return BuildPayload(e.resolvePromptContent(), sourceURL), e.resolveAdapters(overrideTargets)
}

// resolvePromptContent loads the active template, degrading to the generic
// instruction when the store cannot produce one.
func (e *Engine) resolvePromptContent() string {
	if e.PromptOverride != "" {
		return e.PromptOverride
	}
	ps, err := e.Store.LoadPrompts()
	if err != nil {
		e.Log.Warn("prompt store repair could not be persisted", "error", err)
	}
	if p, ok := ps.Active(); ok {
		return p.Content
	}
	e.Log.Warn("active prompt missing, using generic instruction")
	return GenericPrompt
}

// resolveAdapters maps the enabled destination ids to adapters,
// deduplicated and order-preserving, defaulting when nothing valid
// remains.
func (e *Engine) resolveAdapters(override []string) []*adapters.Adapter {
	ids := override
	if len(ids) == 0 {
		ds, err := e.Store.LoadDestinations()
		if err != nil {
			e.Log.Warn("destination settings normalization could not be persisted", "error", err)
		}
		ids = ds.TargetSites
	}

	var out []*adapters.Adapter
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := adapters.ByID(id); ok {
			out = append(out, a)
		} else {
			e.Log.Warn("unknown destination ignored", "destination", id)
		}
	}
	if len(out) == 0 {
		out = append(out, adapters.Default())
	}
	return out
}

// dispatchOne opens the destination tab and delivers the payload,
// retrying while the page is not yet listening.
func (e *Engine) dispatchOne(ctx context.Context, a *adapters.Adapter, finalText string) Result {
	if e.Opener == nil {
		// Degraded mode: no CDP session, so only destinations whose site
		// natively consumes a prompt parameter can be reached, via the
		// system browser.
		res := Result{Destination: a.ID}
		if a.URLPromptParam == "" || len(finalText) > e.MaxURLPayload {
			res.Err = fmt.Errorf("no browser session and %s has no native url handoff", a.ID)
			return res
		}
		res.URL = a.BuildURL(finalText)
		if err := browser.OpenURL(res.URL); err != nil {
			res.Err = fmt.Errorf("failed to open system browser: %w", err)
		}
		return res
	}

	destURL := e.buildDestinationURL(a, finalText)
	res := Result{Destination: a.ID, URL: destURL}

	page, err := e.Opener.OpenTab(ctx, destURL)
	if err != nil {
		res.Err = fmt.Errorf("failed to open destination tab: %w", err)
		return res
	}

	msg := inject.Message{
		Action:     inject.ActionFillAndSend,
		TargetSite: a.ID,
		FinalText:  finalText,
	}

	var ack inject.Ack
	err = retry.Attempts(ctx, e.MaxDeliveryAttempts, e.DeliveryRetryDelay, func(ctx context.Context) error {
		var derr error
		ack, derr = e.Injector.Deliver(ctx, page, msg)
		return derr
	})
	if err != nil {
		e.Log.Error("delivery abandoned", "destination", a.ID, "error", err)
		e.Injector.Forget(page.ID())
		res.Err = err
		return res
	}

	res.Skipped = ack.Skipped
	if !ack.OK {
		res.Err = errors.New(ack.Error)
	}
	return res
}

// buildDestinationURL picks the handoff shape for one destination: the
// site's own prompt parameter when it declares one, our payload parameter
// for short payloads, a parked task id for long ones, or the plain chat
// URL. Direct message delivery always follows; the injector's dedupe
// guard absorbs the overlap.
func (e *Engine) buildDestinationURL(a *adapters.Adapter, finalText string) string {
	short := len(finalText) <= e.MaxURLPayload

	if a.URLPromptParam != "" && short {
		return a.BuildURL(finalText)
	}

	if short {
		return appendParam(a.ChatURL, inject.PayloadParam, finalText)
	}

	if e.Tasks != nil {
		id, err := e.Tasks.Put(a.ID, finalText)
		if err == nil {
			return appendParam(a.ChatURL, taskstore.TaskParam, id)
		}
		e.Log.Warn("failed to park task, falling back to direct delivery only",
			"destination", a.ID, "error", err)
	}
	return a.ChatURL
}

func appendParam(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
