package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/cmd/meridian/cli"
)

// runJobsCommand handles `meridian jobs <trigger|inspect> [args]` without
// starting the HTTP server.
func runJobsCommand(ctx context.Context, redisAddr string, args []string, logger *slog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: meridian jobs <trigger|inspect> [task] [arg]")
	}

	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: meridian jobs trigger <task> [invoice-id]")
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
}
