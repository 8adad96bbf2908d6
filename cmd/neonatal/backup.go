package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehr/neonatal/internal/config"
	"github.com/ehr/neonatal/internal/platform/backup"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the local patient store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Write one snapshot to BACKUP_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverBolt {
				return fmt.Errorf("backups are only supported with STORE_DRIVER %q", config.DriverBolt)
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, _, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, ok := store.(backup.Snapshotter)
			if !ok {
				return fmt.Errorf("store %q cannot be snapshotted", cfg.StoreDriver)
			}
			path, err := backup.NewScheduler(snap, cfg.BackupDir, cfg.BackupRetain, logger).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots in BACKUP_DIR, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			files, err := backup.List(cfg.BackupDir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	})

	return cmd
}
