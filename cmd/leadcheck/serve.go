package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/clientflow/leadcheck/internal/bot"
	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/email"
	"github.com/clientflow/leadcheck/internal/inbox"
	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/metrics"
	"github.com/clientflow/leadcheck/internal/sheets"
	"github.com/clientflow/leadcheck/internal/template"
	"github.com/clientflow/leadcheck/internal/web"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP message endpoint",
		Long:  "Accept chat messages over HTTP, run the signup flow and verify email addresses in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// pipeline is every long-lived component behind the HTTP server.
type pipeline struct {
	store     *leads.Store
	router    *bot.Router
	outbox    *bot.Outbox
	scheduler *bot.TimerScheduler
	server    *web.Server
}

func (p *pipeline) shutdown(ctx context.Context) {
	if err := p.server.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", slog.String("error", err.Error()))
	}
	if err := p.router.Close(ctx); err != nil {
		slog.Warn("router shutdown", slog.String("error", err.Error()))
	}
	p.store.Close()
}

func buildPipeline(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := leads.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	engine, err := template.NewEngine(cfg.Bot.Brand)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}
	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create email sender: %w", err)
	}
	challenger := email.NewChallenger(sender, engine, cfg.Email, log)

	var dial inbox.DialFunc
	if err := cfg.ValidateInbox(); err == nil {
		dial = inbox.IMAPDialer(cfg.Inbox, log)
	} else {
		log.Warn("bounce checking disabled, every address will be accepted", slog.String("reason", err.Error()))
	}
	oracle := inbox.NewOracle(dial, cfg.Inbox, log)

	sheet := sheets.NewClient(cfg.Sheet, log)
	if !sheet.Enabled() {
		log.Info("sheet sync disabled")
	}

	messages := bot.NewMessages(cfg.Bot.Brand, cfg.Bot.Messages)
	var hooks []bot.Hook
	if cfg.Bot.Document.Path != "" {
		hooks = append(hooks, &bot.DocumentHook{
			Path:     cfg.Bot.Document.Path,
			Filename: cfg.Bot.Document.Filename,
			Caption:  cfg.Bot.Document.Caption,
			Messages: messages,
			Logger:   log,
		})
	}
	if cfg.Bot.Welcome {
		hooks = append(hooks, &bot.WelcomeEmailHook{Mailer: challenger, Logger: log})
	}

	collector := metrics.NewCollector(reg)
	scheduler := bot.NewTimerScheduler(cfg.Verification.MaxConcurrent, cfg.Verification.Timeout, log)
	outbox := bot.NewOutbox(cfg.Server.OutboxPerIdentity, log)

	router := bot.NewRouter(bot.Deps{
		Store:       store,
		Challenger:  challenger,
		Oracle:      oracle,
		Sheets:      sheet,
		Scheduler:   scheduler,
		Notifier:    outbox,
		Messages:    messages,
		Hooks:       hooks,
		Metrics:     collector,
		Logger:      log,
		Provider:    sender.Name(),
		VerifyDelay: cfg.Verification.Delay,
		SessionTTL:  cfg.Bot.SessionTTL,
	})

	server := web.NewServer(web.Options{
		Config:   cfg.Server,
		Brand:    cfg.Bot.Brand,
		Router:   router,
		Outbox:   outbox,
		Leads:    store,
		Document: cfg.Bot.Document,
		Gatherer: reg,
		Logger:   log,
	})

	return &pipeline{
		store:     store,
		router:    router,
		outbox:    outbox,
		scheduler: scheduler,
		server:    server,
	}, nil
}

func runServe(addr string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	reg := prometheus.NewRegistry()
	p, err := buildPipeline(cfg, log, reg)
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.server.Shutdown(ctx)
	}()

	serveErr := p.server.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.shutdown(ctx)
	return serveErr
}
