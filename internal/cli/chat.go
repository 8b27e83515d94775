package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/conversation"
	"loom/internal/runner"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var sessionID string
	var preset string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the configured model",
		Long: `Send a message through the context engine and print the reply.

With no message argument an interactive session starts. The engine
compresses older history into summary blocks as the conversation grows
and keeps extracted facts pinned in the context.`,
		Example: `  # Send a single message
  loom chat "Hello there"

  # Continue an existing session
  loom chat --session demo "What did we discuss?"

  # Interactive session with the aggressive compression preset
  loom chat --preset aggressive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			manager, err := cliCtx.GetManager()
			if err != nil {
				return err
			}
			engine, err := manager.Get(sessionID)
			if err != nil {
				return err
			}

			if preset != "" {
				dir, _ := config.DefaultPresetsDir()
				cfg, err := conversation.ResolvePreset(dir, preset)
				if err != nil {
					return err
				}
				cfg.Model = engine.Config().Model
				engine.UpdateConfig(cfg)
			}

			if len(args) > 0 {
				return sendOnce(cmd, engine, strings.Join(args, " "))
			}
			return runInteractiveChat(cmd, engine)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue")
	cmd.Flags().StringVar(&preset, "preset", "", "compression preset (built-in or yaml file name)")

	return cmd
}

func sendOnce(cmd *cobra.Command, engine *runner.SessionEngine, message string) error {
	result, err := engine.Send(cmd.Context(), message)
	if err != nil {
		return err
	}
	fmt.Println(result.Reply.Content)
	fmt.Printf("\n(Session ID: %s)\n", engine.SessionID())
	return nil
}

func runInteractiveChat(cmd *cobra.Command, engine *runner.SessionEngine) error {
	fmt.Printf("Loom Interactive Chat (session %s)\n", engine.SessionID())
	fmt.Println("----------------------------------")
	fmt.Println("Type '/help' for commands, '/exit' to quit")
	fmt.Println("")

	engine.Subscribe(func(ev runner.Event) {
		if ev.Kind == runner.EventCompression {
			fmt.Printf("[compression: %s]\n", ev.Detail)
		}
	})

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Printf("[%s] You: ", engine.ActiveBranch())
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := handleChatCommand(cmd.Context(), engine, input); quit {
				return nil
			}
			continue
		}

		result, err := engine.Send(cmd.Context(), input)
		if err != nil {
			fmt.Printf("Error: %v\n\n", err)
			continue
		}
		fmt.Printf("Assistant: %s\n\n", result.Reply.Content)
	}
}

// handleChatCommand runs one slash command. Returns true on exit.
func handleChatCommand(ctx context.Context, engine *runner.SessionEngine, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Println("  /facts           show extracted facts")
		fmt.Println("  /blocks          show summary blocks")
		fmt.Println("  /stats           show token statistics")
		fmt.Println("  /branches        list branches")
		fmt.Println("  /fork [n]        fork from the first n messages")
		fmt.Println("  /switch <name>   switch branch")
		fmt.Println("  /compress        force a compression pass")
		fmt.Println("  /reset           clear the active branch")
		fmt.Println("  /exit            quit")

	case "/facts":
		printFacts(engine.Facts())

	case "/blocks":
		blocks := engine.SummaryBlocks()
		if len(blocks) == 0 {
			fmt.Println("no summary blocks")
		}
		for i, b := range blocks {
			fmt.Printf("%d. [%d messages, ~%d tokens] %s\n", i+1, b.MessageCount, b.EstimatedTokens, b.Content)
		}

	case "/stats":
		printStats(engine.TokenStatistics())

	case "/branches":
		active := engine.ActiveBranch()
		for _, name := range engine.Branches() {
			marker := "  "
			if name == active {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, name)
		}

	case "/fork":
		checkpoint := len(engine.History())
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: /fork [n]")
				break
			}
			checkpoint = n
		}
		name, err := engine.Fork(engine.ActiveBranch(), checkpoint)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			break
		}
		fmt.Printf("forked and switched to %s\n", name)

	case "/switch":
		if len(fields) < 2 {
			fmt.Println("usage: /switch <name>")
			break
		}
		if err := engine.Switch(fields[1]); err != nil {
			fmt.Printf("Error: %v\n", err)
			break
		}
		fmt.Printf("switched to %s\n", fields[1])

	case "/compress":
		res, ran := engine.Compact(ctx)
		if !ran {
			fmt.Println("compression already in progress")
			break
		}
		fmt.Printf("compression: %s\n", res.Kind())

	case "/reset":
		engine.Reset()
		fmt.Println("branch cleared")

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	fmt.Println()
	return false
}

func printFacts(groups map[string]map[string]string) {
	if len(groups) == 0 {
		fmt.Println("no facts")
		return
	}
	for category, facts := range groups {
		fmt.Printf("%s:\n", category)
		for key, value := range facts {
			fmt.Printf("  %s = %s\n", key, value)
		}
	}
}

func printStats(stats runner.TokenStatistics) {
	fmt.Printf("model:             %s\n", stats.Model)
	fmt.Printf("requests:          %d\n", stats.RequestCount)
	fmt.Printf("prompt tokens:     %d\n", stats.PromptTokens)
	fmt.Printf("completion tokens: %d\n", stats.CompletionTokens)
	fmt.Printf("total tokens:      %d\n", stats.TotalTokens)
	fmt.Printf("context estimate:  %d / %d (%.1f%%)\n", stats.EstimatedTokens, stats.ContextLimit, stats.UsagePercent)
	fmt.Printf("history size:      %d\n", stats.HistorySize)
	fmt.Printf("summary blocks:    %d\n", stats.SummaryBlocks)
	fmt.Printf("facts:             %d\n", stats.FactsCount)
	if stats.CostKnown {
		fmt.Printf("estimated cost:    $%.4f\n", stats.EstimatedCost)
	}
}
