// Command attendance-widget is a terminal view of today's attendance. It
// redraws the running totals every tick, refetches my-status periodically,
// and reads commands from stdin:
//
//	in | out | lunch | lunch-end | break <reason> | break-end | refresh | quit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	client "github.com/cmlabs-hris/hrms-backend-go/internal/client/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit")

func main() {
	if err := run(); err != nil && !errors.Is(err, errQuit) {
		fmt.Fprintln(os.Stderr, "attendance-widget:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	apiURL := getEnv("HRMS_API_URL", "http://localhost:8080")
	token := os.Getenv("HRMS_ACCESS_TOKEN")
	if token == "" {
		return errors.New("HRMS_ACCESS_TOKEN is required")
	}
	tick, err := time.ParseDuration(getEnv("HRMS_TICK_INTERVAL", "1s"))
	if err != nil {
		return fmt.Errorf("invalid HRMS_TICK_INTERVAL: %w", err)
	}
	refetch, err := time.ParseDuration(getEnv("HRMS_REFETCH_INTERVAL", "30s"))
	if err != nil {
		return fmt.Errorf("invalid HRMS_REFETCH_INTERVAL: %w", err)
	}

	// Keep log lines off stdout so they do not tear the status line.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewClient(apiURL, token, nil)
	tracker := client.NewTracker(api, client.TrackerOptions{
		Clock:           clock.New(time.Local),
		TickInterval:    tick,
		RefetchInterval: refetch,
		Logger:          logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	lines := make(chan string)
	go readLines(gctx, os.Stdin, lines)

	g.Go(func() error {
		return tracker.Run(gctx, func(v client.View) { render(os.Stdout, v) })
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := handle(gctx, api, tracker, line); err != nil {
					if errors.Is(err, errQuit) {
						return err
					}
					fmt.Fprintf(os.Stdout, "\n%v\n", err)
				}
			}
		}
	})

	return g.Wait()
}

func handle(ctx context.Context, api *client.Client, tracker *client.Tracker, line string) error {
	word, rest, _ := strings.Cut(strings.TrimSpace(line), " ")

	var cmd attendance.Command
	switch word {
	case "":
		return nil
	case "in":
		cmd = attendance.CommandCheckIn
	case "out":
		cmd = attendance.CommandCheckOut
	case "lunch":
		cmd = attendance.CommandStartLunch
	case "lunch-end":
		cmd = attendance.CommandEndLunch
	case "break":
		cmd = attendance.CommandStartBreak
	case "break-end":
		cmd = attendance.CommandEndBreak
	case "refresh":
		return tracker.Refresh(ctx)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", word)
	}

	resp, err := api.Send(ctx, cmd, strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	tracker.Replace(resp)
	return nil
}

func render(w io.Writer, v client.View) {
	if v.Snapshot == nil {
		fmt.Fprint(w, "\r\033[Kwaiting for server...")
		return
	}

	line := fmt.Sprintf("%s | %-14s | worked %s | break %s",
		v.Snapshot.Employee.FullName,
		v.Projection.State,
		client.FormatSeconds(v.Projection.WorkingSeconds),
		client.FormatSeconds(v.Projection.BreakSeconds),
	)
	if v.Snapshot.ForgottenCheckout != nil {
		line += fmt.Sprintf(" | open session from %s", v.Snapshot.ForgottenCheckout.Date.Format("2006-01-02"))
	}
	if v.Stale {
		line += " | offline"
	}
	fmt.Fprint(w, "\r\033[K"+line)
}

// readLines forwards lines from r until EOF or until ctx is done.
func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
