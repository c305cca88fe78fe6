package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RichardFellows/data-refresh/internal/database"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test source and target database connections",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := database.NewConnectionPool(&cfg.Databases.Source, &cfg.Databases.Target, cfg.Settings.ConnectionTimeout)
	defer pool.CloseAll()

	results := pool.TestConnections(ctx)

	failed := 0
	for _, role := range []string{database.RoleSource, database.RoleTarget} {
		endpoint := cfg.Databases.Source
		if role == database.RoleTarget {
			endpoint = cfg.Databases.Target
		}
		if results[role] {
			cmd.Printf("%s: ok (%s/%s)\n", role, endpoint.Server, endpoint.Database)
		} else {
			cmd.Printf("%s: FAILED (%s/%s)\n", role, endpoint.Server, endpoint.Database)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d connection(s) failed", failed)
	}
	return nil
}
