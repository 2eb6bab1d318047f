package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tabsend/cli/internal/adapters"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage destination chat sites",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported destinations and whether they are enabled",
	RunE:  runTargetsList,
}

var targetsEnableCmd = &cobra.Command{
	Use:   "enable <id>...",
	Short: "Enable destinations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTargetsEnable,
}

var targetsDisableCmd = &cobra.Command{
	Use:   "disable <id>...",
	Short: "Disable destinations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTargetsDisable,
}

func init() {
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsEnableCmd)
	targetsCmd.AddCommand(targetsDisableCmd)
	rootCmd.AddCommand(targetsCmd)
}

func runTargetsList(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	ds, err := store.LoadDestinations()
	if err != nil {
		return err
	}

	rows := pterm.TableData{{"", "ID", "Name", "URL"}}
	for _, a := range adapters.All() {
		marker := ""
		if lo.Contains(ds.TargetSites, a.ID) {
			marker = "✓"
		}
		rows = append(rows, []string{marker, a.ID, a.DisplayName, a.ChatURL})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runTargetsEnable(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	ds, err := store.LoadDestinations()
	if err != nil {
		return err
	}

	for _, id := range args {
		if _, ok := adapters.ByID(id); !ok {
			return fmt.Errorf("unknown destination %q; run 'tabsend targets list'", id)
		}
	}

	ds.TargetSites = lo.Uniq(append(ds.TargetSites, args...))
	if err := store.SaveDestinations(ds); err != nil {
		return err
	}
	pterm.Success.Printf("Enabled: %v\n", args)
	return nil
}

func runTargetsDisable(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	ds, err := store.LoadDestinations()
	if err != nil {
		return err
	}

	ds.TargetSites = lo.Filter(ds.TargetSites, func(id string, _ int) bool {
		return !lo.Contains(args, id)
	})
	if len(ds.TargetSites) == 0 {
		pterm.Warning.Printf("No destinations left enabled; sends will fall back to %s\n", adapters.DefaultID)
	}
	if err := store.SaveDestinations(ds); err != nil {
		return err
	}
	pterm.Success.Printf("Disabled: %v\n", args)
	return nil
}
