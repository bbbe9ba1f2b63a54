package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewDialCommand returns the dial subcommand with its phonebook actions.
func NewDialCommand() *cli.Command {
	return &cli.Command{
		Name:  "dial",
		Usage: "Manage the outbound phonebook",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a contact to the phonebook",
				ArgsUsage: "<phone-number>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "language",
						Aliases: []string{"l"},
						Usage:   "Contact language",
						Value:   "en",
					},
				},
				Action: runDialAdd,
			},
			{
				Name:   "list",
				Usage:  "List phonebook contacts",
				Action: runDialList,
			},
		},
	}
}

func runDialAdd(_ context.Context, cmd *cli.Command) error {
	number := cmd.Args().First()
	if number == "" {
		return fmt.Errorf("usage: slingdial dial add <phone-number>")
	}

	cfg := loadConfig(cmd)
	book, err := openPhonebook(cfg)
	if err != nil {
		return err
	}
	defer book.Close()

	id, err := book.Add(number, cmd.String("language"))
	if err != nil {
		return err
	}
	fmt.Printf("added contact %d: %s (%s)\n", id, number, cmd.String("language"))
	return nil
}

func runDialList(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	book, err := openPhonebook(cfg)
	if err != nil {
		return err
	}
	defer book.Close()

	contacts, err := book.List()
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		fmt.Println("phonebook is empty")
		return nil
	}

	for _, c := range contacts {
		status := "pending"
		if c.Called {
			status = "called " + c.LastCalled
		}
		fmt.Printf("%4d  %-16s  %-4s  %s\n", c.ID, c.PhoneNumber, c.Language, status)
	}
	return nil
}
