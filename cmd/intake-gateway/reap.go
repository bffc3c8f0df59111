package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mymunastore/aretenvi/internal/reaper"
)

func newReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Expire idle conversations once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if cfg.IdleTimeout == 0 {
				return errors.New("idle timeout is disabled; nothing to reap")
			}
			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()

			sweeper, err := reaper.New(storage.store, cfg.IdleTimeout, cfg.ReapInterval, logger, nil)
			if err != nil {
				return err
			}
			n, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "expired %d idle conversation(s)\n", n)
			return nil
		},
	}
}
