package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/slingshot-ai/slingdial/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "slingdial",
		Usage: "Voice-call dialog orchestration server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewChatCommand(),
			NewDialCommand(),
			NewCallsCommand(),
			NewSecretsCommand(),
			NewStatusCommand(),
		},
	}
}
