package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/prompt"
)

// NewPromptCmd creates the prompt command.
func NewPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage prompt presets",
		Long:  `List and inspect the prompt presets loaded from the prompts directory.`,
	}

	cmd.AddCommand(newPromptListCmd())
	cmd.AddCommand(newPromptShowCmd())

	return cmd
}

func promptStore(cmd *cobra.Command) (*prompt.Store, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}

	dir := cliCtx.Config.Prompts.Dir
	if dir == "" {
		var err error
		dir, err = config.DefaultPromptsDir()
		if err != nil {
			return nil, err
		}
	}
	return prompt.NewStore(dir)
}

func newPromptListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := promptStore(cmd)
			if err != nil {
				return err
			}

			presets := store.List()
			if len(presets) == 0 {
				fmt.Println("no presets")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, p := range presets {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
			}
			return w.Flush()
		},
	}
}

func newPromptShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a preset's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := promptStore(cmd)
			if err != nil {
				return err
			}
			p, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(p.Content)
			return nil
		},
	}
}
