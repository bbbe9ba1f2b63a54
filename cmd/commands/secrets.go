package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/secrets"
)

// NewSecretsCommand returns the secrets subcommand.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Manage encrypted provider credentials",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a credential encrypted in the .env file",
				ArgsUsage: "<ENV_VAR_NAME>",
				Action:    runSecretsSet,
			},
		},
	}
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: slingdial secrets set <ENV_VAR_NAME>")
	}

	var value string
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprintf(os.Stderr, "value for %s: ", name)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		value = string(raw)
	} else {
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			sb.Write(buf[:n])
			if err != nil {
				break
			}
		}
		value = strings.TrimSpace(sb.String())
	}
	if value == "" {
		return fmt.Errorf("empty value")
	}

	vault := secrets.NewVault(config.DotenvPath(), secrets.KeyPath())
	if err := vault.SetCredential(name, value); err != nil {
		return err
	}
	fmt.Printf("stored %s encrypted in %s\n", name, config.DotenvPath())
	return nil
}
