package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/agentlink/internal/client"
	"github.com/zhouzirui/agentlink/internal/service/turn"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat; each line is a turn",
		Long: "Interactive chat. Commands: /watch <session-id> switches the event feed, " +
			"/events lists recent events, /session prints the session id, /quit exits.\n" +
			"Agent commands: /info, /tools, /tool <name> [json], /agents, " +
			"/agent create|start|stop|pause|resume|update|remove|watch.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadClientConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := newPrinter(cmd.OutOrStdout())
			c := client.New(cfg, out, client.WithSessionID(sessionID))
			return runREPL(ctx, c, out, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	return cmd
}

// runREPL runs the client channels and the input loop until either ends.
func runREPL(ctx context.Context, c *client.Client, out *printer, in io.Reader) error {
	g, gctx := errgroup.WithContext(ctx)
	replCtx, quit := context.WithCancel(gctx)
	defer quit()

	g.Go(func() error {
		return c.Run(replCtx)
	})
	g.Go(func() error {
		defer quit()
		return readLoop(replCtx, c, out, in)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readLoop(ctx context.Context, c *client.Client, out *printer, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, c, out, strings.TrimSpace(line)); done {
				return nil
			}
		}
	}
}

// handleLine runs one REPL command or chat turn and reports whether to exit.
func handleLine(ctx context.Context, c *client.Client, out *printer, line string) bool {
	if line == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/session":
		if id := c.SessionID(); id != "" {
			out.info("session: %s", id)
		} else {
			out.info("no session yet")
		}
	case "/watch":
		if arg == "" {
			out.info("usage: /watch <session-id>")
			return false
		}
		if err := c.Watch(arg); err != nil {
			out.info("error: %v", err)
			return false
		}
		out.info("watching events of %s", arg)
	case "/events":
		events, err := c.RecentEvents(ctx, 0)
		if err != nil {
			out.info("error: %v", err)
			return false
		}
		if len(events) == 0 {
			out.info("no events")
		}
		for _, ev := range events {
			out.info("%s", formatEvent(ev))
		}
	case "/info":
		showInfo(ctx, c, out)
	case "/tools":
		showTools(ctx, c, out)
	case "/tool":
		callTool(ctx, c, out, arg)
	case "/agents":
		showAgents(ctx, c, out)
	case "/agent":
		manageAgent(ctx, c, out, arg)
	default:
		// Observer callbacks already rendered the outcome.
		if _, err := c.Send(ctx, line); errors.Is(err, turn.ErrBusy) {
			out.info("still waiting for the previous reply")
		}
	}
	return false
}
