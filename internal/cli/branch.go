package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"loom/internal/runner"
)

// NewBranchCmd creates the branch command.
func NewBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage conversation branches",
		Long: `Fork, switch, list, and delete branches of a session.

A fork copies the first n messages of the parent branch as a checkpoint
and re-extracts facts from the copied user messages. Summary blocks are
not inherited.`,
	}

	cmd.AddCommand(newBranchListCmd())
	cmd.AddCommand(newBranchForkCmd())
	cmd.AddCommand(newBranchSwitchCmd())
	cmd.AddCommand(newBranchDeleteCmd())

	return cmd
}

func branchEngine(cmd *cobra.Command, sessionID string) (*runner.SessionEngine, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}
	manager, err := cliCtx.GetManager()
	if err != nil {
		return nil, err
	}
	return manager.Get(sessionID)
}

func newBranchListCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List branches of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := branchEngine(cmd, sessionID)
			if err != nil {
				return err
			}
			active := engine.ActiveBranch()
			for _, name := range engine.Branches() {
				marker := "  "
				if name == active {
					marker = "* "
				}
				fmt.Printf("%s%s\n", marker, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func newBranchForkCmd() *cobra.Command {
	var (
		sessionID string
		parent    string
	)

	cmd := &cobra.Command{
		Use:   "fork [checkpoint-size]",
		Short: "Fork a new branch from a checkpoint prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := branchEngine(cmd, sessionID)
			if err != nil {
				return err
			}
			if parent == "" {
				parent = engine.ActiveBranch()
			}

			checkpoint := len(engine.History())
			if len(args) == 1 {
				checkpoint, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid checkpoint size %q", args[0])
				}
			}

			name, err := engine.Fork(parent, checkpoint)
			if err != nil {
				return err
			}
			fmt.Printf("forked %s from %s\n", name, parent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	cmd.Flags().StringVar(&parent, "parent", "", "parent branch (default: active)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func newBranchSwitchCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "switch <name>",
		Short: "Switch the active branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := branchEngine(cmd, sessionID)
			if err != nil {
				return err
			}
			if err := engine.Switch(args[0]); err != nil {
				return err
			}
			fmt.Printf("switched to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func newBranchDeleteCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := branchEngine(cmd, sessionID)
			if err != nil {
				return err
			}
			if err := engine.DeleteBranch(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted branch %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
