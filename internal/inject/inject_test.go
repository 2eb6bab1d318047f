package inject

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsend/cli/internal/taskstore"
)

// fakePage scripts a tab's evaluate responses by result type: the probe
// decodes into *int, the fill into *bool, the send trigger into *string,
// and the URL bootstrap into *urlPayload.
type fakePage struct {
	mu sync.Mutex

	id      string
	host    string
	hostErr error

	boot        urlPayload
	probeResult int
	fillResult  bool
	clickResult string

	fillScripts []string
	clicks      int
}

func (p *fakePage) ID() string { return p.id }

func (p *fakePage) Host() (string, error) { return p.host, p.hostErr }

func (p *fakePage) Evaluate(js string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch v := out.(type) {
	case *urlPayload:
		*v = p.boot
	case *int:
		*v = p.probeResult
	case *bool:
		p.fillScripts = append(p.fillScripts, js)
		*v = p.fillResult
	case *string:
		p.clicks++
		*v = p.clickResult
	}
	return nil
}

func (p *fakePage) fillCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fillScripts)
}

func newFakePage(host string) *fakePage {
	return &fakePage{
		id:          "tab-" + host,
		host:        host,
		probeResult: 0,
		fillResult:  true,
		clickResult: "clicked",
	}
}

func fastConfig() Config {
	return Config{
		ComposerPollInterval: time.Millisecond,
		ComposerWaitCeiling:  50 * time.Millisecond,
		SendTriggerDelay:     time.Millisecond,
		CoolDown:             2 * time.Millisecond,
		DedupeWindow:         time.Hour,
	}
}

func TestDeliverFillsAndSends(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")

	ack, err := in.Deliver(context.Background(), page, Message{
		Action:    ActionFillAndSend,
		FinalText: "T:\nhttps://example.com/a",
	})
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.False(t, ack.Skipped)
	require.Equal(t, 1, page.fillCount())
	assert.Equal(t, 1, page.clicks)

	// The payload reaches the fill script verbatim, JSON-escaped.
	escaped, _ := json.Marshal("T:\nhttps://example.com/a")
	assert.Contains(t, page.fillScripts[0], string(escaped))
}

func TestDeliverDuplicateWithinWindowSkipped(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	msg := Message{Action: ActionFillAndSend, FinalText: "same payload"}

	ack, err := in.Deliver(context.Background(), page, msg)
	require.NoError(t, err)
	require.True(t, ack.OK)

	// Wait out the cool-down so the second attempt hits the dedupe check,
	// not the in-flight check.
	time.Sleep(20 * time.Millisecond)

	ack, err = in.Deliver(context.Background(), page, msg)
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.True(t, ack.Skipped)
	assert.Equal(t, 1, page.fillCount())
}

func TestDeliverSamePayloadAfterWindowRunsAgain(t *testing.T) {
	cfg := fastConfig()
	cfg.DedupeWindow = 30 * time.Millisecond
	in := New(cfg, nil, nil)
	page := newFakePage("chatgpt.com")
	msg := Message{Action: ActionFillAndSend, FinalText: "same payload"}

	ack, err := in.Deliver(context.Background(), page, msg)
	require.NoError(t, err)
	require.True(t, ack.OK)

	time.Sleep(60 * time.Millisecond)

	ack, err = in.Deliver(context.Background(), page, msg)
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.False(t, ack.Skipped)
	assert.Equal(t, 2, page.fillCount())
}

func TestDeliverDroppedWhileInFlight(t *testing.T) {
	cfg := fastConfig()
	cfg.CoolDown = time.Hour // guard stays claimed after the first run
	in := New(cfg, nil, nil)
	page := newFakePage("chatgpt.com")

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "first"})
	require.NoError(t, err)
	require.True(t, ack.OK)

	ack, err = in.Deliver(context.Background(), page, Message{FinalText: "second"})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "in flight")
	assert.Equal(t, 1, page.fillCount())
}

func TestDeliverComposerTimeoutIsTerminal(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	page.probeResult = -1 // composer never appears

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "composer never appeared")
	assert.Zero(t, page.fillCount())
	assert.Zero(t, page.clicks)
}

func TestDeliverRetryAfterFailureIsNotDeduped(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	page.probeResult = -1 // first attempt times out

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
	require.NoError(t, err)
	require.False(t, ack.OK)

	// The composer appears; re-triggering the same payload must fill and
	// send rather than being skipped as a duplicate, since nothing was sent.
	page.probeResult = 0
	assert.Eventually(t, func() bool {
		ack, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
		return err == nil && ack.OK && !ack.Skipped
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, page.fillCount())
}

func TestDeliverUnrecognizedPage(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("example.com")

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, ErrNoAdapter.Error(), ack.Error)
}

func TestDeliverExplicitTargetSiteWins(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("example.com") // hostname would not resolve

	ack, err := in.Deliver(context.Background(), page, Message{
		TargetSite: "claude",
		FinalText:  "payload",
	})
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestDeliverPageNotReadyIsRetryable(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	page.hostErr = context.DeadlineExceeded

	_, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page not ready")
}

func TestDeliverURLEmbeddedPayloadWins(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	page.boot = urlPayload{Payload: "embedded payload"}

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "message payload"})
	require.NoError(t, err)
	require.True(t, ack.OK)

	escaped, _ := json.Marshal("embedded payload")
	assert.Contains(t, page.fillScripts[0], string(escaped))
}

type fakeTasks struct {
	task *taskstore.Task
	err  error
}

func (f *fakeTasks) Take(id string) (*taskstore.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.task, nil
}

func TestDeliverTaskHandoff(t *testing.T) {
	tasks := &fakeTasks{task: &taskstore.Task{
		ID:            "01TASK",
		DestinationID: "claude",
		FinalText:     "parked payload",
	}}
	in := New(fastConfig(), nil, tasks)
	page := newFakePage("example.com") // adapter must come from the task
	page.boot = urlPayload{TaskID: "01TASK"}

	ack, err := in.Deliver(context.Background(), page, Message{})
	require.NoError(t, err)
	assert.True(t, ack.OK)

	escaped, _ := json.Marshal("parked payload")
	assert.Contains(t, page.fillScripts[0], string(escaped))
}

func TestDeliverTaskAlreadyConsumed(t *testing.T) {
	in := New(fastConfig(), nil, &fakeTasks{err: taskstore.ErrNotFound})
	page := newFakePage("chatgpt.com")
	page.boot = urlPayload{TaskID: "01GONE"}

	ack, err := in.Deliver(context.Background(), page, Message{})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "empty payload")
}

func TestDeliverEnterFallback(t *testing.T) {
	in := New(fastConfig(), nil, nil)
	page := newFakePage("chatgpt.com")
	page.clickResult = "enter"

	ack, err := in.Deliver(context.Background(), page, Message{FinalText: "payload"})
	require.NoError(t, err)
	assert.True(t, ack.OK)
}

func TestCallJSWrapsConfig(t *testing.T) {
	js, err := callJS("(cfg) => cfg.selectors.length", map[string]any{"selectors": []string{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(js, "((cfg) => cfg.selectors.length)("))
	assert.Contains(t, js, `"selectors":["a","b"]`)
}
