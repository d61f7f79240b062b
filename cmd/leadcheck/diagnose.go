package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clientflow/leadcheck/internal/email"
	"github.com/clientflow/leadcheck/internal/inbox"
	"github.com/clientflow/leadcheck/internal/template"
)

func checkBounceCmd() *cobra.Command {
	var (
		since time.Duration
		list  bool
		days  int
	)

	cmd := &cobra.Command{
		Use:   "check-bounce <email>",
		Short: "Check the bounce mailbox for an address",
		Long: `Run one bounce check against the configured mailbox, exactly as the
verification flow does, and print the verdict.

Examples:
  leadcheck check-bounce someone@example.com            # bounces in the last hour
  leadcheck check-bounce someone@example.com --since 24h
  leadcheck check-bounce --list --days 7                # recent bounce notifications`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return runListBounces(cmd.OutOrStdout(), days)
			}
			return runCheckBounce(cmd.OutOrStdout(), args[0], since)
		},
	}

	cmd.Flags().DurationVar(&since, "since", time.Hour, "how far back the bounce window starts")
	cmd.Flags().BoolVar(&list, "list", false, "list recent bounce notifications instead")
	cmd.Flags().IntVar(&days, "days", 7, "days to scan with --list")

	return cmd
}

func runCheckBounce(w io.Writer, target string, since time.Duration) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateInbox(); err != nil {
		return err
	}

	addr := email.Normalize(target)
	if err := email.ValidateEmail(addr); err != nil {
		return err
	}

	oracle := inbox.NewOracle(inbox.IMAPDialer(cfg.Inbox, log), cfg.Inbox, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Verification.Timeout)
	defer cancel()

	v, err := oracle.Check(ctx, addr, time.Now().Add(-since))
	if err != nil {
		return fmt.Errorf("bounce check failed: %w", err)
	}

	if v.Bounced {
		fmt.Fprintf(w, "❌ %s bounced\n", addr)
		fmt.Fprintf(w, "   Evidence: %s\n", v.EvidenceMessageID)
	} else {
		fmt.Fprintf(w, "✓ No bounce found for %s\n", addr)
	}
	fmt.Fprintf(w, "   Scanned %d notification(s) since %s\n", v.Scanned, time.Now().Add(-since).Format(time.RFC3339))
	return nil
}

func runListBounces(w io.Writer, days int) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateInbox(); err != nil {
		return err
	}

	monitor := inbox.NewMonitor(cfg.Inbox, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Verification.Timeout)
	defer cancel()

	if err := monitor.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to inbox: %w", err)
	}
	defer monitor.Disconnect()

	bounces, err := monitor.FetchBounces(ctx, days, 50)
	if err != nil {
		return fmt.Errorf("failed to fetch bounce emails: %w", err)
	}
	if len(bounces) == 0 {
		fmt.Fprintln(w, "✓ No bounced emails found!")
		return nil
	}

	fmt.Fprintf(w, "Found %d bounce notification(s):\n\n", len(bounces))
	for i := range bounces {
		b := &bounces[i]
		recipient := inbox.ExtractBouncedRecipient(b, cfg.Inbox.Email)
		if recipient == "" {
			recipient = "(unknown recipient)"
		}
		fmt.Fprintf(w, "❌ %s\n", recipient)
		fmt.Fprintf(w, "   Subject: %s\n", truncateString(b.Subject, 60))
		fmt.Fprintf(w, "   Date: %s\n\n", b.ReceivedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func sendTestCmd() *cobra.Command {
	var (
		name         string
		templateName string
	)

	cmd := &cobra.Command{
		Use:   "send-test <email>",
		Short: "Send a test email with the configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendTest(cmd.OutOrStdout(), args[0], name, templateName)
		},
	}

	cmd.Flags().StringVar(&name, "name", "Test", "recipient name used in the template")
	cmd.Flags().StringVar(&templateName, "template", template.Challenge, "template to send (challenge or welcome)")

	return cmd
}

func runSendTest(w io.Writer, target, name, templateName string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := email.Normalize(target)
	if err := email.ValidateEmail(addr); err != nil {
		return err
	}

	engine, err := template.NewEngine(cfg.Bot.Brand)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	if !slices.Contains(engine.AvailableTemplates(), templateName) {
		return fmt.Errorf("unknown template %q (available: %s)", templateName, strings.Join(engine.AvailableTemplates(), ", "))
	}
	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return err
	}
	challenger := email.NewChallenger(sender, engine, cfg.Email, log)

	if err := challenger.SendTemplate(context.Background(), templateName, name, addr); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Sent %s email to %s via %s\n", templateName, addr, sender.Name())
	return nil
}
