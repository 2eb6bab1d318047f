package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tabsend/cli/internal/browser"
	"github.com/tabsend/cli/internal/dispatch"
	"github.com/tabsend/cli/internal/inject"
	"github.com/tabsend/cli/internal/settings"
	"github.com/tabsend/cli/internal/taskstore"
)

var sendCmd = &cobra.Command{
	Use:   "send [url]",
	Short: "Send a page to your configured AI chats",
	Long: `Send a page URL, wrapped in your active prompt template, to every
enabled destination chat site.

The source URL can be given as an argument; without one, tabsend reads
the active tab of the connected browser. Each destination opens in its
own tab and the message is typed into its composer and submitted.`,
	Example: `  # Send the active tab to all enabled destinations
  tabsend send

  # Send a specific URL
  tabsend send https://example.com/article

  # Send to specific destinations only
  tabsend send -t chatgpt -t claude

  # Use a one-off prompt instead of the active template
  tabsend send --prompt "Translate this page to English:\n"

  # Show what would be sent without opening anything
  tabsend send --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringSliceP("target", "t", nil, "Destination site id (repeatable, overrides settings)")
	sendCmd.Flags().String("prompt", "", "Prompt text to use instead of the active template")
	sendCmd.Flags().Bool("dry-run", false, "Resolve the payload and destinations without sending")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	targets, _ := cmd.Flags().GetStringSlice("target")
	promptOverride, _ := cmd.Flags().GetString("prompt")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx := cmd.Context()

	store, err := getStore(cmd)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}

	cdpURL := getCDPURL(cmd)
	if err := browser.ValidateDevToolsURL(cdpURL); err != nil {
		return err
	}

	var session *browser.Session
	session, err = browser.Connect(ctx, cdpURL)
	if err != nil {
		if len(args) == 0 {
			pterm.Error.Printf("Could not connect to Chrome at %s.\n", cdpURL)
			pterm.Info.Println("Start Chrome with --remote-debugging-port=9222, or pass the page URL directly.")
			return err
		}
		pterm.Warning.Printf("No browser session at %s; falling back to the system browser where possible.\n", cdpURL)
		session = nil
	}

	sourceURL := ""
	if len(args) > 0 {
		sourceURL = args[0]
	} else {
		sourceURL, err = session.ActiveTabURL(ctx)
		if err != nil {
			return fmt.Errorf("failed to read the active tab: %w", err)
		}
	}

	tasks, err := taskstore.Open(store.Dir())
	if err != nil {
		pterm.Warning.Printf("Task store unavailable, long payloads lose their URL handoff: %v\n", err)
		tasks = nil
	} else {
		defer tasks.Close()
	}

	engine := newEngine(store, session, tasks)
	engine.PromptOverride = promptOverride

	if dryRun {
		return printDryRun(engine, sourceURL, targets)
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Sending %s", sourceURL))
	results, err := engine.Run(ctx, sourceURL, targets)
	if err != nil {
		spinner.Fail("Send aborted")
		return err
	}
	spinner.Stop()

	return printResults(results)
}

// sessionOpener bridges the browser session to the dispatch engine's
// page-typed opener.
type sessionOpener struct {
	s *browser.Session
}

func (o sessionOpener) OpenTab(ctx context.Context, rawURL string) (inject.Page, error) {
	return o.s.OpenTab(ctx, rawURL)
}

// newEngine assembles the dispatch engine. session may be nil, which
// enables the degraded system-browser mode.
func newEngine(store *settings.Store, session *browser.Session, tasks *taskstore.Store) *dispatch.Engine {
	var source inject.TaskSource
	if tasks != nil {
		source = tasks
	}
	injector := inject.New(inject.DefaultConfig(), nil, source)

	var opener dispatch.Opener
	if session != nil {
		opener = sessionOpener{session}
	}
	var sink dispatch.TaskSink
	if tasks != nil {
		sink = tasks
	}
	return dispatch.New(store, opener, injector, sink, nil)
}

func printDryRun(engine *dispatch.Engine, sourceURL string, targets []string) error {
	payload, destinations := engine.Plan(sourceURL, targets)

	pterm.Info.Println("Payload:")
	pterm.Println(payload)
	pterm.Println()
	pterm.Info.Println("Destinations:")
	for _, d := range destinations {
		pterm.Printf("  %s (%s)\n", d.DisplayName, d.ID)
	}
	return nil
}

func printResults(results []dispatch.Result) error {
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			pterm.Error.Printf("%-12s %v\n", r.Destination, r.Err)
		case r.Skipped:
			pterm.Warning.Printf("%-12s already sent, skipped\n", r.Destination)
		default:
			pterm.Success.Printf("%-12s sent\n", r.Destination)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d destinations failed", failed, len(results))
	}
	return nil
}
