package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mymunastore/aretenvi/internal/config"
	"github.com/mymunastore/aretenvi/internal/dispatch"
	"github.com/mymunastore/aretenvi/internal/flow"
	"github.com/mymunastore/aretenvi/internal/httpapi"
	"github.com/mymunastore/aretenvi/internal/intake"
	"github.com/mymunastore/aretenvi/internal/metrics"
	"github.com/mymunastore/aretenvi/internal/reaper"
	"github.com/mymunastore/aretenvi/internal/session"
	"github.com/mymunastore/aretenvi/internal/subscribers"
	"github.com/mymunastore/aretenvi/internal/subscribers/logging"
	"github.com/mymunastore/aretenvi/internal/subscribers/webhook"
	"github.com/mymunastore/aretenvi/internal/subscribers/wsfeed"
	"github.com/mymunastore/aretenvi/internal/templates"
	"github.com/mymunastore/aretenvi/internal/types"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the WhatsApp webhook, staff routes and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn("storage close error", "err", err)
		}
	}()

	m := metrics.New()
	hub := wsfeed.New(logger, wsfeed.WithClientGauge(m.FeedClients))
	defer func() { _ = hub.Close() }()

	dispatcher := dispatch.New(logger, notifySubscribers(cfg, logger, hub),
		dispatch.WithFailureObserver(func(subscriber string, eventType types.EventType) {
			m.DeliveryFailed(subscriber, string(eventType))
		}),
	)

	service, err := intake.New(intake.Deps{
		Store:       storage.store,
		Sink:        storage.sink,
		Machine:     flow.NewMachine(templates.New(cfg.Templates())),
		Serializer:  session.NewSerializer(logger, cfg.QueueSize),
		Publisher:   dispatcher,
		Metrics:     m,
		Logger:      logger,
		IdleTimeout: cfg.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize intake service: %w", err)
	}

	var sweeper *reaper.Reaper
	if cfg.IdleTimeout > 0 {
		sweeper, err = reaper.New(storage.store, cfg.IdleTimeout, cfg.ReapInterval, logger, m)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	srv := httpapi.NewServer(logger, httpapi.Options{
		Addr:             cfg.HTTPAddr,
		WebhookPath:      cfg.WebhookPath,
		WebhookSecret:    cfg.WebhookSecret,
		PublicWebhookURL: cfg.PublicWebhookURL,
		AdminToken:       cfg.AdminToken,
		Intake:           service,
		Registrations:    storage.sink,
		Feed:             hub,
		Metrics:          m.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "webhook_path", cfg.WebhookPath, "staff_routes", cfg.StaffEnabled())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server crashed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "err", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", "err", err)
	}
	return nil
}

func notifySubscribers(cfg config.Config, logger *slog.Logger, hub *wsfeed.Hub) []subscribers.Subscriber {
	subs := []subscribers.Subscriber{logging.New(logger), hub}
	for idx, webhookURL := range cfg.NotifyWebhookURLs {
		var opts []webhook.Option
		if cfg.NotifySigningSecret != "" {
			opts = append(opts, webhook.WithSigningSecret(cfg.NotifySigningSecret))
		}
		subs = append(subs, webhook.New(webhookSubscriberName(idx, webhookURL), webhookURL, logger, opts...))
	}
	return subs
}

func webhookSubscriberName(index int, webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err == nil {
		host := strings.TrimSpace(parsed.Host)
		if host != "" {
			return host
		}
	}
	return fmt.Sprintf("webhook-%d", index+1)
}
