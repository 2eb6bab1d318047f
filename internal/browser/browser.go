// Package browser manages the Chrome session over the DevTools Protocol.
// The normal mode attaches to the user's already running, signed-in browser
// (started with --remote-debugging-port); a managed launch exists for
// setups without one. Destination tabs opened here are handed to the
// injector and then left alone — closing or focusing them is the user's
// business.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// DefaultDevToolsURL is where a locally started Chrome usually listens.
const DefaultDevToolsURL = "http://127.0.0.1:9222"

// Session is one connection to a Chrome instance.
type Session struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
}

// detachedBase strips cancellation from ctx while keeping its values.
// Session and tab contexts descend from this base: if the caller's
// cancellation reached a tab context, chromedp would detach and close the
// tab, and delivered tabs must outlive the command or request that opened
// them.
func detachedBase(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Connect attaches to a running Chrome exposing a DevTools endpoint.
// Accepts either the http://host:port form or a ws:// debugger URL. The
// connection is rooted independently of ctx so that cancelling the caller
// does not tear down tabs already handed to the user.
func Connect(ctx context.Context, devtoolsURL string) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(detachedBase(ctx), devtoolsURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
	}

	// Listing targets both validates the connection and avoids creating a
	// stray blank tab the way running an action on the browser context
	// would.
	if _, err := chromedp.Targets(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", devtoolsURL, err)
	}
	return s, nil
}

// Launch starts a Chrome instance managed by this process. userDataDir may
// point at an existing profile so destination sites stay signed in. Unlike
// Connect, the browser's lifetime is tied to ctx: a managed browser and its
// tabs are ours to clean up.
func Launch(ctx context.Context, headless bool, userDataDir string) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(userDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
	}

	if _, err := chromedp.Targets(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return s, nil
}

// Close tears down the connection (and the browser, when launched by us).
// Not called after a successful dispatch: the delivered tabs belong to the
// user now, and cancelling the session context would close them.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// Healthy reports whether the browser connection still answers.
func (s *Session) Healthy() error {
	if _, err := chromedp.Targets(s.browserCtx); err != nil {
		return fmt.Errorf("browser connection lost: %w", err)
	}
	return nil
}

// ActiveTabURL returns the URL of the tab considered active: the first
// page-type target that is not a browser-internal page. Chrome reports
// targets most-recently-active first, which makes this the focused tab in
// the common single-window case.
func (s *Session) ActiveTabURL(ctx context.Context) (string, error) {
	var infos []*target.Info
	infos, err := chromedp.Targets(s.browserCtx)
	if err != nil {
		return "", fmt.Errorf("failed to list browser targets: %w", err)
	}

	for _, info := range infos {
		if info.Type != "page" || isInternalURL(info.URL) {
			continue
		}
		return info.URL, nil
	}
	return "", fmt.Errorf("no regular page tab found")
}

func isInternalURL(raw string) bool {
	for _, prefix := range []string{"chrome://", "chrome-extension://", "devtools://", "about:", "edge://"} {
		if strings.HasPrefix(raw, prefix) {
			return true
		}
	}
	return false
}

// Tab is one destination tab opened for delivery. It implements the
// injector's Page interface.
type Tab struct {
	ctx context.Context
	id  string

	// cancel would close the tab; it is kept only so the context is not
	// garbage collected early and is deliberately never called.
	cancel context.CancelFunc
}

// OpenTab opens a new tab, navigates it to rawURL, and waits for the load
// to complete.
func (s *Session) OpenTab(ctx context.Context, rawURL string) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)

	if err := chromedp.Run(tabCtx, chromedp.Navigate(rawURL)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open %s: %w", rawURL, err)
	}

	id := ""
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		id = string(c.Target.TargetID)
	}
	return &Tab{ctx: tabCtx, id: id, cancel: cancel}, nil
}

// ID returns the tab's DevTools target id.
func (t *Tab) ID() string {
	return t.id
}

// Host returns the page's current hostname.
func (t *Tab) Host() (string, error) {
	var host string
	if err := chromedp.Run(t.ctx, chromedp.Evaluate("window.location.hostname", &host)); err != nil {
		return "", err
	}
	return host, nil
}

// Evaluate runs a JavaScript expression in the tab.
func (t *Tab) Evaluate(js string, out any) error {
	return chromedp.Run(t.ctx, chromedp.Evaluate(js, out))
}

// ValidateDevToolsURL rejects obviously malformed endpoint values before a
// connection attempt produces a confusing error.
func ValidateDevToolsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid devtools url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("devtools url %q must use http(s) or ws(s)", raw)
	}
}
