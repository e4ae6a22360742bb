package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/nhle/tempmail/internal/app"
	"github.com/nhle/tempmail/internal/ui/message"
	"github.com/nhle/tempmail/internal/ui/qr"
)

var errNoSession = errors.New("no active mailbox, run tempmail first")

var addressCommand = &cli.Command{
	Name:   "address",
	Usage:  "Print the active address, creating a mailbox when needed",
	Action: addressAction,
}

var inboxCommand = &cli.Command{
	Name:    "inbox",
	Aliases: []string{"ls"},
	Usage:   "List the messages of the active mailbox",
	Action:  inboxAction,
}

var readCommand = &cli.Command{
	Name:      "read",
	Usage:     "Print a single message",
	ArgsUsage: "<message-id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "headers",
			Usage: "print the raw message headers instead of the body",
		},
	},
	Action: readAction,
}

var qrCommand = &cli.Command{
	Name:   "qr",
	Usage:  "Print the QR image URL for the active address",
	Action: qrAction,
}

var resetCommand = &cli.Command{
	Name:   "reset",
	Usage:  "Forget the active mailbox",
	Action: resetAction,
}

// runAction starts the interactive inbox, or prints the address when
// stdout is not a terminal.
func runAction(ctx context.Context, cmd *cli.Command) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return addressAction(ctx, cmd)
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	m := app.New(e.svc, *e.cfg, app.WithConfigPath(cmd.String("config")))
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("running inbox: %w", err)
	}
	return nil
}

func addressAction(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	address, ok := e.svc.RestoreSession(ctx)
	if !ok {
		if address, err = e.svc.ProvisionAccount(ctx); err != nil {
			return err
		}
	}
	fmt.Println(address)
	return nil
}

func inboxAction(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, ok := e.svc.RestoreSession(ctx); !ok {
		return errNoSession
	}

	msgs, err := e.svc.ListMessages(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("Inbox is empty.")
		return nil
	}

	for _, s := range msgs {
		when := s.Date
		if t := s.Time(); !t.IsZero() {
			when = humanize.Time(t)
		}
		subject := s.Subject
		if subject == "" {
			subject = "(No Subject)"
		}
		fmt.Printf("%s  %s  %s  %s\n",
			s.ID,
			runewidth.FillRight(runewidth.Truncate(s.SenderName(), 20, "…"), 20),
			runewidth.FillRight(runewidth.Truncate(subject, 40, "…"), 40),
			when,
		)
	}
	return nil
}

func readAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("missing message id")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, ok := e.svc.RestoreSession(ctx); !ok {
		return errNoSession
	}

	if cmd.Bool("headers") {
		headers, err := e.svc.FetchHeaders(ctx, id)
		if err != nil {
			return err
		}
		for _, h := range headers {
			fmt.Printf("%s: %s\n", h.Key, h.Value)
		}
		return nil
	}

	msg, err := e.svc.FetchMessage(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("From:    %s\n", msg.From)
	fmt.Printf("To:      %s\n", msg.To)
	fmt.Printf("Subject: %s\n", msg.Subject)
	if t := msg.Time(); !t.IsZero() {
		fmt.Printf("Date:    %s\n", t.Local().Format("Mon, 02 Jan 2006 15:04"))
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Println(message.Body(msg))

	for _, a := range msg.Attachments {
		fmt.Printf("\n[%s, %s] %s", a.Filename, humanize.Bytes(uint64(a.Size)), a.DownloadURL)
	}
	if len(msg.Attachments) > 0 {
		fmt.Println()
	}
	return nil
}

func qrAction(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	address, ok := e.svc.RestoreSession(ctx)
	if !ok {
		return errNoSession
	}
	fmt.Println(qr.URL(e.cfg.QR, address))
	return nil
}

func resetAction(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.svc.ClearSession(ctx); err != nil {
		return err
	}
	fmt.Println("Mailbox forgotten.")
	return nil
}
