// Package inject drives the message composer of a loaded destination tab:
// it waits for the composer to exist, writes the payload so the page's own
// framework observes it, and triggers the send control. One injector serves
// many tabs; per-tab execution state (reentrancy and dedupe) is isolated in
// a Guard keyed by tab id and discarded with the tab.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tabsend/cli/internal/adapters"
	"github.com/tabsend/cli/internal/taskstore"
	"github.com/tabsend/cli/pkg/retry"
)

const (
	// ActionFillAndSend is the fixed action tag on delivery messages.
	ActionFillAndSend = "fillAndSend"

	// PayloadParam is the query parameter carrying a URL-embedded payload.
	PayloadParam = "ts"

	// LegacyPayloadParam is the pre-rename payload parameter, still
	// accepted on read.
	LegacyPayloadParam = "q_prompt"
)

var (
	// ErrNoAdapter means the page is not a recognized destination; the
	// attempt is terminal, there is nothing to retry.
	ErrNoAdapter = errors.New("inject: page is not a recognized destination")

	// ErrComposerTimeout means the composer never appeared within the wait
	// ceiling. Terminal for this invocation.
	ErrComposerTimeout = errors.New("inject: composer never appeared")
)

// Message is the orchestrator-to-injector delivery message.
type Message struct {
	Action     string `json:"action"`
	TargetSite string `json:"targetSite,omitempty"`
	FinalText  string `json:"finalText"`
}

// Ack is the injector's synchronous reply to a delivery message.
type Ack struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Page is one loaded destination tab as the injector sees it.
type Page interface {
	// ID identifies the tab for guard bookkeeping; stable for the tab's
	// lifetime.
	ID() string

	// Host returns the page's current hostname. An error means the page
	// cannot be evaluated yet.
	Host() (string, error)

	// Evaluate runs a JavaScript expression in the page and decodes the
	// result into out. out may be nil to discard the result.
	Evaluate(js string, out any) error
}

// TaskSource resolves parked task ids, typically *taskstore.Store.
type TaskSource interface {
	Take(id string) (*taskstore.Task, error)
}

// Config holds the injector's timing knobs.
type Config struct {
	// ComposerPollInterval is how often the composer selectors are retried.
	ComposerPollInterval time.Duration

	// ComposerWaitCeiling bounds the composer wait; past it the attempt
	// fails terminally.
	ComposerWaitCeiling time.Duration

	// SendTriggerDelay sits between fill and send so the page's UI logic
	// can observe the injected text and enable its control.
	SendTriggerDelay time.Duration

	// CoolDown re-arms the reentrancy guard after a fill. Must exceed
	// SendTriggerDelay.
	CoolDown time.Duration

	// DedupeWindow suppresses a byte-identical repeat of the last payload.
	DedupeWindow time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ComposerPollInterval: 400 * time.Millisecond,
		ComposerWaitCeiling:  25 * time.Second,
		SendTriggerDelay:     700 * time.Millisecond,
		CoolDown:             2 * time.Second,
		DedupeWindow:         8 * time.Second,
	}
}

// Injector fills and sends payloads in destination tabs.
type Injector struct {
	cfg   Config
	log   *slog.Logger
	tasks TaskSource

	mu     sync.Mutex
	guards map[string]*Guard
}

// New returns an injector. tasks may be nil when the storage handoff path
// is unavailable; log may be nil for the default logger.
func New(cfg Config, log *slog.Logger, tasks TaskSource) *Injector {
	if log == nil {
		log = slog.Default()
	}
	return &Injector{
		cfg:    cfg,
		log:    log,
		tasks:  tasks,
		guards: make(map[string]*Guard),
	}
}

// urlPayload is what the URL bootstrap script reports.
type urlPayload struct {
	Payload string `json:"payload"`
	TaskID  string `json:"taskId"`
}

// Deliver handles one delivery message for a tab and replies synchronously.
// The returned error is non-nil only for transport-level failures (the page
// is not reachable for evaluation yet); those are safe to retry — the guard
// suppresses accidental double execution. All terminal outcomes are
// reported through the Ack.
func (in *Injector) Deliver(ctx context.Context, page Page, msg Message) (Ack, error) {
	host, err := page.Host()
	if err != nil {
		return Ack{}, fmt.Errorf("page not ready: %w", err)
	}

	text := msg.FinalText
	targetSite := msg.TargetSite

	// Bootstrap paths: a payload embedded in the page URL wins, then a
	// parked task referenced by id, then the delivery message itself.
	if boot := in.bootstrapPayload(page); boot != nil {
		switch {
		case boot.Payload != "":
			text = boot.Payload
		case boot.TaskID != "" && in.tasks != nil:
			task, terr := in.tasks.Take(boot.TaskID)
			if terr != nil {
				if !errors.Is(terr, taskstore.ErrNotFound) {
					in.log.Warn("task lookup failed", "task", boot.TaskID, "error", terr)
				}
				break
			}
			text = task.FinalText
			if targetSite == "" {
				targetSite = task.DestinationID
			}
		}
	}

	var a *adapters.Adapter
	var ok bool
	if targetSite != "" {
		a, ok = adapters.ByID(targetSite)
	} else {
		a, ok = adapters.ByHostname(host)
	}
	if !ok {
		return Ack{Error: ErrNoAdapter.Error()}, nil
	}
	if text == "" {
		return Ack{Error: "empty payload"}, nil
	}

	switch err := in.runWithText(ctx, page, a, text); {
	case err == nil:
		return Ack{OK: true}, nil
	case errors.Is(err, ErrDuplicate):
		in.log.Info("duplicate payload skipped", "destination", a.ID, "tab", page.ID())
		return Ack{OK: true, Skipped: true}, nil
	case errors.Is(err, ErrInFlight):
		in.log.Warn("payload dropped, fill already in flight", "destination", a.ID, "tab", page.ID())
		return Ack{Error: err.Error()}, nil
	default:
		return Ack{Error: err.Error()}, nil
	}
}

// bootstrapPayload reads and strips a URL-embedded payload or task id.
// Failures are logged and treated as "nothing embedded".
func (in *Injector) bootstrapPayload(page Page) *urlPayload {
	js, err := callJS(urlPayloadScript, map[string]any{
		"param":       PayloadParam,
		"legacyParam": LegacyPayloadParam,
		"taskParam":   taskstore.TaskParam,
	})
	if err != nil {
		return nil
	}

	var out urlPayload
	if err := page.Evaluate(js, &out); err != nil {
		in.log.Debug("url payload probe failed", "tab", page.ID(), "error", err)
		return nil
	}
	return &out
}

// runWithText executes one fill-and-send in the tab.
func (in *Injector) runWithText(ctx context.Context, page Page, a *adapters.Adapter, text string) error {
	guard := in.guardFor(page.ID())
	if err := guard.Begin(text); err != nil {
		return err
	}
	sent := false
	defer func() { guard.Finish(sent) }()

	probe, err := callJS(probeComposerScript, map[string]any{"selectors": a.ComposerSelectors})
	if err != nil {
		return err
	}

	idx := -1
	err = retry.Poll(ctx, in.cfg.ComposerPollInterval, in.cfg.ComposerWaitCeiling, func(ctx context.Context) (bool, error) {
		var i int
		if err := page.Evaluate(probe, &i); err != nil {
			// The page frontend may still be booting; keep polling.
			return false, nil
		}
		if i >= 0 {
			idx = i
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrCeiling) {
			return fmt.Errorf("%s after %s: %w", a.ID, in.cfg.ComposerWaitCeiling, ErrComposerTimeout)
		}
		return err
	}
	selector := a.ComposerSelectors[idx]

	fill, err := callJS(fillComposerScript, map[string]any{"selector": selector, "text": text})
	if err != nil {
		return err
	}
	var filled bool
	if err := page.Evaluate(fill, &filled); err != nil {
		return fmt.Errorf("failed to fill composer: %w", err)
	}
	if !filled {
		return fmt.Errorf("composer %q disappeared before fill", selector)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(in.cfg.SendTriggerDelay):
	}

	click, err := callJS(clickSendScript, map[string]any{
		"composer":  selector,
		"selectors": a.SendSelectors,
	})
	if err != nil {
		return err
	}
	var how string
	if err := page.Evaluate(click, &how); err != nil {
		return fmt.Errorf("failed to trigger send: %w", err)
	}

	switch how {
	case "clicked":
		in.log.Debug("send control clicked", "destination", a.ID, "tab", page.ID())
	case "enter":
		in.log.Info("no usable send control, fell back to Enter", "destination", a.ID, "tab", page.ID())
	default:
		return fmt.Errorf("no send control and no composer to key into")
	}
	sent = true
	return nil
}

func (in *Injector) guardFor(tabID string) *Guard {
	in.mu.Lock()
	defer in.mu.Unlock()

	g, ok := in.guards[tabID]
	if !ok {
		g = NewGuard(in.cfg.DedupeWindow, in.cfg.CoolDown)
		in.guards[tabID] = g
	}
	return g
}

// Forget drops the guard state for a closed tab.
func (in *Injector) Forget(tabID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.guards, tabID)
}
