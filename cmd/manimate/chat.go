package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"manimate/internal/chat"
)

// runChat is an interactive loop over the synchronous generation endpoint.
func runChat(ctx context.Context, env *runtimeEnv) error {
	if err := env.requireSession(ctx); err != nil {
		return err
	}

	// Best effort: show what the server already has.
	if err := env.Orchestrator.RestoreTranscript(ctx); err != nil {
		env.Logger.Debug().Err(err).Msg("could not restore transcript")
	}
	for _, e := range env.Orchestrator.Messages() {
		printEntry(e)
	}

	fmt.Println(`Type a prompt, "/clear" to reset the view, or "/quit" to exit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return scanner.Err()
		case line == "/clear":
			env.Orchestrator.ClearMessages()
			if env.History != nil {
				if err := env.History.ClearEntries(ctx); err != nil {
					env.Logger.Warn().Err(err).Msg("could not clear cached transcript")
				}
			}
			fmt.Println("Transcript cleared.")
			continue
		}

		reply, err := env.Orchestrator.SendMessage(ctx, line)
		if err != nil {
			// Precondition failures only; generation errors arrive as
			// transcript entries.
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printEntry(reply)
	}
	return scanner.Err()
}

func printEntry(e chat.Entry) {
	prefix := "you"
	if e.Role == chat.RoleAssistant {
		prefix = "assistant"
	}
	line := fmt.Sprintf("%s: %s", prefix, e.Content)
	if e.AnimationURL != "" {
		line += " (" + e.AnimationURL + ")"
	}
	if e.Status == chat.EntryError {
		line += " [failed]"
	}
	fmt.Println(line)
}
