package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mymunastore/aretenvi/internal/config"
	"github.com/mymunastore/aretenvi/internal/db"
	"github.com/mymunastore/aretenvi/internal/registration"
	"github.com/mymunastore/aretenvi/internal/session"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "intake-gateway",
		Short:        "WhatsApp client registration gateway",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (optional).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReapCmd())
	cmd.AddCommand(newLookupCmd())
	return cmd
}

// loadRuntime reads and validates the configuration and builds the logger
// every subcommand starts from.
func loadRuntime(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLoggerFromConfig(loggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

type storage struct {
	db    *gorm.DB
	store *session.GormStore
	sink  *registration.GormSink
}

// openStorage opens one database handle shared by the conversation store and
// the registration sink.
func openStorage(cfg config.Config) (*storage, error) {
	gormDB, err := db.OpenGorm(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	store, err := session.NewGormStoreWithDB(gormDB)
	if err != nil {
		closeGorm(gormDB)
		return nil, fmt.Errorf("initialize conversation store: %w", err)
	}
	sink, err := registration.NewGormSinkWithDB(gormDB,
		registration.WithReferencePrefix(cfg.ReferencePrefix),
		registration.WithSource(cfg.RegistrationSource),
		registration.WithLocation(cfg.Templates().Location),
	)
	if err != nil {
		closeGorm(gormDB)
		return nil, fmt.Errorf("initialize registration sink: %w", err)
	}
	return &storage{db: gormDB, store: store, sink: sink}, nil
}

func (s *storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeGorm(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
