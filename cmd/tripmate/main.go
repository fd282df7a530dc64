package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripmate-ai/tripmate"
	"github.com/tripmate-ai/tripmate/chat"
	"github.com/tripmate-ai/tripmate/config"
	"github.com/tripmate-ai/tripmate/core"
)

var (
	configPath string
	sessionID  string
	prompt     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tripmate",
		Short: "A conversational travel planning assistant",
		Long:  "TripMate plans trips over a chat loop, backed by live place search and hourly weather data",
		RunE:  run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to resume (default: a fresh session)")
	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "One-shot prompt (prints the answer and exits)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	asst, err := tripmate.New(cfg)
	if err != nil {
		return err
	}
	defer asst.Close()

	if sessionID == "" {
		sessionID = core.NewID()
	}

	driver := asst.Chat(sessionID, func(o *chat.Options) {
		o.Renderer = chat.NewTerminalRenderer(os.Stdout)
	})

	if prompt != "" {
		_, err := driver.Send(ctx, prompt)
		return err
	}

	return repl(ctx, driver)
}

// repl reads user lines until EOF, an exit command or cancellation.
func repl(ctx context.Context, driver *chat.Driver) error {
	fmt.Printf("TripMate ready (session %s). Type 'exit' to quit.\n", driver.SessionID())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if _, err := driver.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Send already rendered the error; keep the loop alive
		}
	}
	return scanner.Err()
}
