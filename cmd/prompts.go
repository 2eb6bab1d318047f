package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage prompt templates",
	Long: `Manage the prompt templates that wrap the page URL.

The active template's content is prepended to the source URL with no
extra separator, so end the content with whatever whitespace you want
between the instruction and the URL.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt templates",
	RunE:  runPromptsList,
}

var promptsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a prompt template and make it active",
	Example: `  # Add a template inline
  tabsend prompts add --title "Translate" --content "Translate this page:\n"

  # Pipe the content from a file
  tabsend prompts add --title "Review" < review-prompt.txt`,
	RunE: runPromptsAdd,
}

var promptsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a prompt template",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsRm,
}

var promptsUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Make a prompt template the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsUse,
}

func init() {
	promptsAddCmd.Flags().StringP("title", "t", "", "Template title (required)")
	promptsAddCmd.Flags().StringP("content", "c", "", "Template content; read from stdin when omitted")
	_ = promptsAddCmd.MarkFlagRequired("title")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsRmCmd)
	promptsCmd.AddCommand(promptsUseCmd)
	rootCmd.AddCommand(promptsCmd)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	ps, err := store.LoadPrompts()
	if err != nil {
		return err
	}

	rows := pterm.TableData{{"", "ID", "Title", "Content"}}
	for _, p := range ps.Prompts {
		marker := ""
		if p.ID == ps.ActivePromptID {
			marker = "*"
		}
		rows = append(rows, []string{marker, p.ID, p.Title, previewContent(p.Content)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// previewContent flattens a template for table display.
func previewContent(content string) string {
	content = strings.ReplaceAll(content, "\n", "⏎")
	if len(content) > 48 {
		content = content[:48] + "…"
	}
	return content
}

func runPromptsAdd(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	content, _ := cmd.Flags().GetString("content")

	if content == "" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			raw, err := io.ReadAll(bufio.NewReader(os.Stdin))
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			content = string(raw)
		}
	}
	if content == "" {
		return fmt.Errorf("no content provided. Use --content or pipe it on stdin")
	}

	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	p, err := store.AddPrompt(title, content)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Added prompt %s (%s) and made it active\n", p.Title, p.ID)
	return nil
}

func runPromptsRm(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	if err := store.DeletePrompt(args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted prompt %s\n", args[0])
	return nil
}

func runPromptsUse(cmd *cobra.Command, args []string) error {
	store, err := getStore(cmd)
	if err != nil {
		return err
	}
	if err := store.SetActivePrompt(args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("Active prompt is now %s\n", args[0])
	return nil
}
