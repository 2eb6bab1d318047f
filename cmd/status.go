package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tabsend/cli/internal/taskstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the browser connection and local configuration",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	CDPURL         string `json:"cdpUrl"`
	Browser        string `json:"browser,omitempty"`
	BrowserOK      bool   `json:"browserOk"`
	ConfigDir      string `json:"configDir"`
	ActivePrompt   string `json:"activePrompt,omitempty"`
	Destinations   int    `json:"destinations"`
	TaskStoreOK    bool   `json:"taskStoreOk"`
	BrowserProblem string `json:"browserProblem,omitempty"`
}

// devtoolsVersion is the shape of the DevTools /json/version endpoint.
type devtoolsVersion struct {
	Browser string `json:"Browser"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	report := statusReport{CDPURL: getCDPURL(cmd)}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(report.CDPURL, "/") + "/json/version")
	if err != nil {
		report.BrowserProblem = err.Error()
	} else {
		defer resp.Body.Close()
		var v devtoolsVersion
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			report.BrowserProblem = fmt.Sprintf("invalid response: %v", err)
		} else {
			report.BrowserOK = true
			report.Browser = v.Browser
		}
	}

	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	report.ConfigDir = store.Dir()

	ps, err := store.LoadPrompts()
	if err == nil {
		if p, ok := ps.Active(); ok {
			report.ActivePrompt = p.Title
		}
	}
	if ds, err := store.LoadDestinations(); err == nil {
		report.Destinations = len(ds.TargetSites)
	}
	if tasks, err := taskstore.Open(store.Dir()); err == nil {
		report.TaskStoreOK = true
		_ = tasks.Close()
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printStatusReport(report)
	if !report.BrowserOK {
		return fmt.Errorf("browser not reachable at %s", report.CDPURL)
	}
	return nil
}

var (
	okDot   = pterm.NewRGB(31, 163, 130).Sprint("●")
	badDot  = pterm.NewRGB(242, 85, 51).Sprint("●")
	warnDot = pterm.NewRGB(245, 158, 11).Sprint("●")
)

func printStatusReport(r statusReport) {
	pterm.Println()
	if r.BrowserOK {
		pterm.Printf("  %s %-12s %s (%s)\n", okDot, "Browser", r.Browser, r.CDPURL)
	} else {
		pterm.Printf("  %s %-12s unreachable at %s\n", badDot, "Browser", r.CDPURL)
		pterm.Printf("    %s\n", r.BrowserProblem)
		pterm.Println("    Start Chrome with --remote-debugging-port=9222")
	}

	pterm.Printf("  %s %-12s %s\n", okDot, "Config", r.ConfigDir)

	if r.ActivePrompt != "" {
		pterm.Printf("  %s %-12s %s\n", okDot, "Prompt", r.ActivePrompt)
	} else {
		pterm.Printf("  %s %-12s no active template, the generic instruction will be used\n", warnDot, "Prompt")
	}

	pterm.Printf("  %s %-12s %d enabled\n", okDot, "Targets", r.Destinations)

	if r.TaskStoreOK {
		pterm.Printf("  %s %-12s ok\n", okDot, "Task store")
	} else {
		pterm.Printf("  %s %-12s unavailable, long payloads lose their URL handoff\n", warnDot, "Task store")
	}
	pterm.Println()
}
