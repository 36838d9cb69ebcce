package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for Verdict.

To load completions:

Bash:
  $ source <(verdict completion bash)
  # To load permanently:
  $ verdict completion bash > /etc/bash_completion.d/verdict

Zsh:
  $ verdict completion zsh > "${fpath[1]}/_verdict"
  $ compinit

Fish:
  $ verdict completion fish | source
  # To load permanently:
  $ verdict completion fish > ~/.config/fish/completions/verdict.fish

PowerShell:
  PS> verdict completion powershell | Out-String | Invoke-Expression
  # To load permanently, add to your PowerShell profile
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out(cmd), true)
		case "zsh":
			return rootCmd.GenZshCompletion(out(cmd))
		case "fish":
			return rootCmd.GenFishCompletion(out(cmd), true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out(cmd))
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
