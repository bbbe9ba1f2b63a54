package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/slingshot-ai/slingdial/internal/callstore"
	"github.com/slingshot-ai/slingdial/internal/config"
)

// NewCallsCommand returns the calls subcommand.
func NewCallsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calls",
		Usage: "Inspect active calls",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List active call records",
				Action: runCallsList,
			},
			{
				Name:      "transcript",
				Usage:     "Print the transcript of a call",
				ArgsUsage: "<thread-id>",
				Action:    runCallsTranscript,
			},
		},
	}
}

func runCallsList(_ context.Context, _ *cli.Command) error {
	store := callstore.NewFileStore(config.CallsPath())
	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no active calls")
		return nil
	}

	for _, rec := range list {
		age := time.Since(rec.StartedAt).Truncate(time.Second)
		flag := ""
		if rec.Degraded {
			flag = "  degraded"
		}
		fmt.Printf("%s  %-16s  %-4s  %-8s  %2d turns  %s%s\n",
			rec.ThreadID, rec.PhoneNumber, rec.Language, rec.Direction, rec.Turns, age, flag)
	}
	return nil
}

func runCallsTranscript(_ context.Context, cmd *cli.Command) error {
	threadID := cmd.Args().First()
	if threadID == "" {
		return fmt.Errorf("usage: slingdial calls transcript <thread-id>")
	}

	store := callstore.NewFileStore(config.CallsPath())
	entries, err := store.LoadTranscript(threadID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no transcript")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("[%s] %-9s %s\n", e.At.Format("15:04:05"), e.Role+":", e.Text)
	}
	return nil
}
