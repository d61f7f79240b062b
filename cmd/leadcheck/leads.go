package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clientflow/leadcheck/internal/email"
	"github.com/clientflow/leadcheck/internal/leads"
)

func leadsCmd() *cobra.Command {
	var (
		format string
		userID string
		addr   string
	)

	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Export recorded leads",
		Long: `Print every recorded lead in insertion order.

Examples:
  leadcheck leads                     # JSON
  leadcheck leads --format yaml       # YAML
  leadcheck leads --user 123456789    # one user's submissions
  leadcheck leads --email a@b.co      # latest record for an address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeads(cmd.OutOrStdout(), format, userID, addr)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&userID, "user", "", "only show leads for this user id")
	cmd.Flags().StringVar(&addr, "email", "", "only show the latest lead for this address")
	cmd.MarkFlagsMutuallyExclusive("user", "email")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lead counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.OutOrStdout())
		},
	}
}

func openStore() (*leads.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return leads.NewStore(cfg.Store.Path)
}

func runLeads(w io.Writer, format, userID, addr string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := selectLeads(context.Background(), store, userID, addr)
	if err != nil {
		return err
	}
	return writeLeads(w, records, format)
}

func selectLeads(ctx context.Context, store *leads.Store, userID, addr string) ([]leads.Record, error) {
	switch {
	case addr != "":
		rec, err := store.Latest(ctx, email.Normalize(addr))
		if err != nil || rec == nil {
			return nil, err
		}
		return []leads.Record{*rec}, nil
	case userID != "":
		return store.ForUser(ctx, userID)
	default:
		return store.All(ctx)
	}
}

func writeLeads(w io.Writer, records []leads.Record, format string) error {
	if records == nil {
		records = []leads.Record{}
	}
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (json or yaml)", format)
	}
}

func runStats(w io.Writer) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(context.Background())
	if err != nil {
		return err
	}
	printStats(w, st)
	return nil
}

func printStats(w io.Writer, st leads.Stats) {
	fmt.Fprintln(w, "Lead Statistics")
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(w, "  Total:    %d\n", st.Total)
	fmt.Fprintf(w, "  Pending:  %d\n", st.Pending)
	fmt.Fprintf(w, "  Verified: %d\n", st.Verified)
	fmt.Fprintf(w, "  Invalid:  %d\n", st.Invalid)
}

