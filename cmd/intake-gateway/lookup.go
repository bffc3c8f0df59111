package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mymunastore/aretenvi/internal/registration"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <reference>",
		Short: "Print a registration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()

			reg, err := storage.sink.Lookup(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, registration.ErrNotFound) {
					return fmt.Errorf("no registration with reference %q", args[0])
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reg)
		},
	}
}
