// Package cmd implements the tabsend command line interface.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tabsend/cli/internal/browser"
	"github.com/tabsend/cli/internal/settings"
)

var rootCmd = &cobra.Command{
	Use:   "tabsend",
	Short: "Send the page you are reading to your AI chats",
	Long: `tabsend reads the URL of your active browser tab, combines it with
your prompt template, opens your configured AI chat sites, and submits
the message in each one.

It drives a locally running Chrome over the DevTools protocol. Start
Chrome with --remote-debugging-port=9222 (or point --cdp-url at an
existing endpoint) and keep your chat sites signed in.`,
	SilenceUsage: true,
}

// Root returns the fully assembled command tree.
func Root() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("cdp-url", "", "Chrome DevTools endpoint (default $TABSEND_CDP_URL or "+browser.DefaultDevToolsURL+")")
	rootCmd.PersistentFlags().String("config-dir", "", "Settings directory (default $TABSEND_CONFIG_DIR or the OS config dir)")
}

func getCDPURL(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("cdp-url"); strings.TrimSpace(v) != "" {
		return v
	}
	if v := os.Getenv("TABSEND_CDP_URL"); strings.TrimSpace(v) != "" {
		return v
	}
	return browser.DefaultDevToolsURL
}

func getStore(cmd *cobra.Command) (*settings.Store, error) {
	dir, _ := cmd.Flags().GetString("config-dir")
	if strings.TrimSpace(dir) == "" {
		dir = os.Getenv("TABSEND_CONFIG_DIR")
	}
	if strings.TrimSpace(dir) == "" {
		var err error
		dir, err = settings.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return settings.NewStore(dir)
}
