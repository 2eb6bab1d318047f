package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for tabsend.

Completion covers subcommands and flags; destination ids for
'send -t' and 'targets enable' are listed by 'tabsend targets list'.

Bash:
  $ source <(tabsend completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ tabsend completion bash > /etc/bash_completion.d/tabsend
  # macOS:
  $ tabsend completion bash > $(brew --prefix)/etc/bash_completion.d/tabsend

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ tabsend completion zsh > "${fpath[1]}/_tabsend"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ tabsend completion fish | source

  # To load completions for each session, execute once:
  $ tabsend completion fish > ~/.config/fish/completions/tabsend.fish

PowerShell:
  PS> tabsend completion powershell | Out-String | Invoke-Expression

  # To load completions for each session, add the output of the above
  # command to your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
