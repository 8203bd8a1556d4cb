package cli

import (
	"github.com/spf13/cobra"

	fberrors "github.com/AndreyAkinshin/fleetbuild/internal/errors"
)

// completionCommand generates shell completion scripts.
func (a *app) completionCommand() *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script on stdout.

  source <(fleetbuild completion bash)
  fleetbuild completion zsh > "${fpath[1]}/_fleetbuild"
  fleetbuild completion fish > ~/.config/fish/completions/fleetbuild.fish

Use --alias when fleetbuild is invoked under another name.`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			if alias != "" {
				root.Use = alias
			}
			w := a.out.Out()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(w)
			}
			return fberrors.Configf("unsupported shell %q", args[0])
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "Command name the script completes")
	return cmd
}
