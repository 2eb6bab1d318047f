package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tabsend/cli/internal/adapters"
	"github.com/tabsend/cli/internal/browser"
	"github.com/tabsend/cli/internal/dispatch"
	"github.com/tabsend/cli/internal/settings"
	"github.com/tabsend/cli/internal/taskstore"
)

const defaultListenAddr = "127.0.0.1:8787"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP trigger daemon",
	Long: `Run a small local HTTP server so other tools (editors, launchers,
bookmarklets) can trigger a send without shelling out.

Endpoints:
  POST /trigger       {"url": "...", "targets": ["chatgpt"], "prompt": "..."}
  GET  /healthz       liveness probe
  GET  /destinations  supported destinations and their enabled state

The server binds to loopback by default and has no authentication; do
not expose it beyond the local machine.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default $TABSEND_LISTEN_ADDR or "+defaultListenAddr+")")
	rootCmd.AddCommand(serveCmd)
}

func getListenAddr(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("listen"); strings.TrimSpace(v) != "" {
		return v
	}
	if v := os.Getenv("TABSEND_LISTEN_ADDR"); strings.TrimSpace(v) != "" {
		return v
	}
	return defaultListenAddr
}

type triggerRequest struct {
	URL     string   `json:"url"`
	Targets []string `json:"targets,omitempty"`
	Prompt  string   `json:"prompt,omitempty"`
}

type triggerResult struct {
	Destination string `json:"destination"`
	URL         string `json:"url,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

type destinationInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ChatURL string `json:"chatUrl"`
	Enabled bool   `json:"enabled"`
}

// triggerServer holds what the HTTP handlers need. The browser connection
// is shared across triggers and revalidated before each use: delivered tabs
// hang off its contexts, so tearing a connection down per request would
// close them.
type triggerServer struct {
	store  *settings.Store
	tasks  *taskstore.Store
	cdpURL string
	log    *slog.Logger

	mu      sync.Mutex
	session *browser.Session
}

// acquireSession returns a healthy shared browser connection, dialing or
// re-dialing as needed.
func (ts *triggerServer) acquireSession(ctx context.Context) (*browser.Session, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.session != nil {
		if err := ts.session.Healthy(); err == nil {
			return ts.session, nil
		}
		// The socket is dead, so closing cannot reach any tab.
		ts.session.Close()
		ts.session = nil
	}

	s, err := browser.Connect(ctx, ts.cdpURL)
	if err != nil {
		return nil, err
	}
	ts.session = s
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	tasks, err := taskstore.Open(store.Dir())
	if err != nil {
		log.Warn("task store unavailable, long payloads lose their url handoff", "error", err)
		tasks = nil
	} else {
		defer tasks.Close()
	}

	ts := &triggerServer{
		store:  store,
		tasks:  tasks,
		cdpURL: getCDPURL(cmd),
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Post("/trigger", ts.handleTrigger)
	r.Get("/healthz", ts.handleHealthz)
	r.Get("/destinations", ts.handleDestinations)

	addr := getListenAddr(cmd)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("trigger daemon listening", "addr", addr, "cdp_url", ts.cdpURL)
	pterm.Info.Printf("Listening on http://%s\n", addr)

	ctx := cmd.Context()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (ts *triggerServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ctx := r.Context()
	log := ts.log.With("url", req.URL)

	session, err := ts.acquireSession(ctx)
	if err != nil {
		log.Warn("no browser session, degraded mode", "error", err)
		session = nil
	}

	sourceURL := req.URL
	if sourceURL == "" && session != nil {
		sourceURL, err = session.ActiveTabURL(ctx)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "failed to read the active tab: "+err.Error())
			return
		}
	}

	engine := newEngine(ts.store, session, ts.tasks)
	engine.Log = ts.log
	engine.PromptOverride = req.Prompt

	results, err := engine.Run(ctx, sourceURL, req.Targets)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnsupportedSource) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]triggerResult, len(results))
	failed := 0
	for i, res := range results {
		out[i] = triggerResult{
			Destination: res.Destination,
			URL:         res.URL,
			Skipped:     res.Skipped,
		}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			failed++
		}
	}
	log.Info("trigger handled", "destinations", len(results), "failed", failed)

	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (ts *triggerServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (ts *triggerServer) handleDestinations(w http.ResponseWriter, r *http.Request) {
	ds, err := ts.store.LoadDestinations()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	enabled := map[string]bool{}
	for _, id := range ds.TargetSites {
		enabled[id] = true
	}

	var out []destinationInfo
	for _, a := range adapters.All() {
		out = append(out, destinationInfo{
			ID:      a.ID,
			Name:    a.DisplayName,
			ChatURL: a.ChatURL,
			Enabled: enabled[a.ID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"destinations": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
