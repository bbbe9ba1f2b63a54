package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/dialog"
	"github.com/slingshot-ai/slingdial/internal/dialog/segment"
	"github.com/slingshot-ai/slingdial/internal/events"
)

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the dialog engine on the terminal (no telephony)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "language",
				Aliases: []string{"l"},
				Usage:   "Session language",
				Value:   "en",
			},
		},
		Action: runChat,
	}
}

func runChat(_ context.Context, cmd *cli.Command) error {
	setupLogging(cmd)
	cfg := loadConfig(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	engine, err := buildEngine(ctx, cfg, bus)
	if err != nil {
		return err
	}
	seg := segment.New()

	languages, err := config.NewLanguageTable(cfg.Speech.DefaultLanguage, cfg.Speech.LanguagesFile)
	if err != nil {
		return fmt.Errorf("load language profiles: %w", err)
	}
	profile := languages.Lookup(cmd.String("language"), config.DirectionInbound)
	sess := dialog.NewSession(profile.Language, profile)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println(profile.Greeting)
		fmt.Fprintf(os.Stderr, "thread: %s (ctrl-d to hang up)\n", sess.ThreadID)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		utterance := strings.TrimSpace(scanner.Text())
		if utterance == "" {
			continue
		}

		if err := speakTurn(ctx, engine, seg, sess, utterance); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func speakTurn(ctx context.Context, engine *dialog.Engine, seg *segment.Segmenter, sess *dialog.Session, utterance string) error {
	stream, err := engine.RunTurn(ctx, sess, utterance)
	if err != nil {
		return err
	}

	first, rest, err := seg.Speak(ctx, stream)
	if err != nil {
		return err
	}
	defer rest.Close()

	fmt.Println(first)
	for {
		sentence, err := rest.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(sentence)
	}
}
