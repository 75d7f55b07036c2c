// Package main runs the interactive chat portal client.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/analytics"
	"github.com/chatportal/conversation-core/internal/config"
	"github.com/chatportal/conversation-core/internal/intelligence"
	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/internal/session"
	"github.com/chatportal/conversation-core/internal/transport"
	"github.com/chatportal/conversation-core/pkg/logger"
	"github.com/chatportal/conversation-core/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-portal", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	client := transport.New(cfg.BackendURL, cfg.RequestTimeout, log)
	manager := session.NewManager(client, log)
	engine := intelligence.NewEngine(client, log)
	dashboard := analytics.NewAggregator(client, log)

	if status, err := client.FetchStatus(ctx); err != nil {
		fmt.Println("Backend status: Offline")
	} else {
		fmt.Printf("Backend status: %s\n", status)
	}

	fmt.Println("AI Chat Portal. Type a message to chat, /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(line), "/") {
			if quit := runCommand(ctx, line, manager, engine, dashboard, client); quit {
				break
			}
			continue
		}

		send(ctx, manager, line)
	}

	// Close the session cleanly on exit if one is still open.
	if manager.State() == session.StateActive {
		if summary, err := manager.End(ctx); err == nil {
			fmt.Printf("Conversation ended. Summary: %s\n", summary)
		}
	}
}

func send(ctx context.Context, manager *session.Manager, text string) {
	if manager.State() == session.StateNoConversation {
		conv, err := manager.Start(ctx, model.DefaultTitle)
		if err != nil {
			fmt.Printf("Could not start conversation: %v\n", err)
			return
		}
		fmt.Printf("Started conversation %s\n", conv.ID)
	}

	reply, err := manager.Send(ctx, text)
	switch {
	case err != nil:
		// The unsent text stays in the caller's hands; nothing was lost.
		fmt.Printf("Send failed: %v\n", err)
	case reply != nil:
		fmt.Printf("ai: %s\n", reply.Content)
	}
}

func runCommand(
	ctx context.Context,
	line string,
	manager *session.Manager,
	engine *intelligence.Engine,
	dashboard *analytics.Aggregator,
	client *transport.Client,
) (quit bool) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	cmd := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch cmd {
	case "/help":
		fmt.Println("/list /end /resume <id> /search <query> /dashboard /status /reset /quit")

	case "/list":
		convs, err := client.FetchConversations(ctx)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			return false
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return false
		}
		for _, conv := range convs {
			fmt.Printf("%s  [%s]  %s\n", conv.ID, conv.Status, conv.Title)
		}

	case "/end":
		summary, err := manager.End(ctx)
		if err != nil {
			if errors.Is(err, session.ErrConversationEnded) || errors.Is(err, session.ErrNoConversation) {
				fmt.Println("No active conversation to end.")
			} else {
				fmt.Printf("End failed (still active, retry with /end): %v\n", err)
			}
			return false
		}
		fmt.Printf("Conversation ended. Summary: %s\n", summary)

	case "/resume":
		if arg == "" {
			fmt.Println("Usage: /resume <conversation-id>")
			return false
		}
		conv, err := manager.Resume(ctx, arg)
		if err != nil {
			fmt.Printf("Resume failed: %v\n", err)
			return false
		}
		fmt.Printf("Resumed conversation %s with %d messages.\n", conv.ID, len(manager.Messages()))
		for _, msg := range manager.Messages() {
			fmt.Printf("%s: %s\n", msg.Sender, msg.Content)
		}
		if conv.Ended() {
			fmt.Println("This conversation has already ended; use /reset to start fresh.")
		}

	case "/search":
		results, err := engine.Run(ctx, arg)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			return false
		}
		if len(results) == 0 {
			fmt.Println("No matching conversations found.")
			return false
		}
		for _, r := range results {
			fmt.Printf("%5.1f%%  %s\n", r.Similarity*100, r.Content)
		}

	case "/dashboard":
		snap, err := dashboard.RefreshSnapshot(ctx)
		if err != nil {
			fmt.Printf("Dashboard unavailable: %v\n", err)
			return false
		}
		fmt.Printf("Total conversations:  %s\n", analytics.FormatCount(snap.TotalConversations))
		fmt.Printf("Active conversations: %s\n", analytics.FormatCount(snap.ActiveConversations))
		fmt.Printf("Avg response time:    %s\n", analytics.FormatAvgResponse(snap.AvgResponseTime))
		fmt.Printf("Using local LLM:      %v\n", snap.UsingLocalLLM)

	case "/status":
		status, err := client.FetchStatus(ctx)
		if err != nil {
			status = "Offline"
		}
		fmt.Printf("Backend status: %s\n", status)

	case "/reset":
		manager.Reset()
		fmt.Println("Session discarded.")

	case "/quit", "/exit":
		return true

	default:
		fmt.Printf("Unknown command %s, try /help\n", cmd)
	}
	return false
}
