package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clientflow/leadcheck/internal/config"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		Long:  "Ask for the brand, the sending Gmail account and the optional sheet URL, then write a config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), resolveConfigPath(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func runInit(in io.Reader, w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	reader := bufio.NewReader(in)

	fmt.Fprintln(w, "leadcheck configuration setup")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w)

	cfg := &config.Config{}
	cfg.Bot.Brand = prompt(reader, w, "Brand name shown to leads [ClientFlow]: ")
	if cfg.Bot.Brand == "" {
		cfg.Bot.Brand = "ClientFlow"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Gmail account used to send verification emails")
	fmt.Fprintln(w, "  (an app password is required, see https://support.google.com/accounts/answer/185833)")
	account := prompt(reader, w, "  Gmail address: ")
	password := prompt(reader, w, "  App password: ")

	cfg.Email.Provider = "smtp"
	cfg.Email.From = account
	cfg.Email.FromName = cfg.Bot.Brand
	cfg.Email.SMTP = config.SMTPConfig{
		Host:     "smtp.gmail.com",
		Port:     465,
		Username: account,
		Password: password,
		UseTLS:   true,
	}

	if answer := prompt(reader, w, "Watch this mailbox for bounces? [Y/n]: "); !strings.EqualFold(answer, "n") {
		cfg.Inbox.Enabled = true
		cfg.Inbox.Provider = "gmail"
		cfg.Inbox.Email = account
		cfg.Inbox.Password = password
	}

	fmt.Fprintln(w)
	cfg.Sheet.URL = prompt(reader, w, "Sheet web app URL (optional): ")

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "✅ Configuration saved to: %s\n", path)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Run 'leadcheck send-test <you@example.com>' to check delivery")
	fmt.Fprintln(w, "  2. Run 'leadcheck serve' to start accepting messages")
	return nil
}

func prompt(reader *bufio.Reader, w io.Writer, message string) string {
	fmt.Fprint(w, message)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return ""
	}
	return strings.TrimSpace(input)
}
