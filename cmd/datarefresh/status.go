package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status [table]",
	Short: "Compare configured tables across source and target",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := database.NewConnectionPool(&cfg.Databases.Source, &cfg.Databases.Target, cfg.Settings.ConnectionTimeout)
	defer pool.CloseAll()

	svc := service.NewStatusService(cfg, pool)

	var statuses []model.TableStatus
	if len(args) > 0 {
		status, err := svc.TableStatus(ctx, args[0])
		if err != nil {
			return err
		}
		statuses = []model.TableStatus{*status}
	} else {
		var err error
		statuses, err = svc.TableStatuses(ctx)
		if err != nil {
			return err
		}
	}

	printStatuses(cmd, statuses)
	return nil
}

func printStatuses(cmd *cobra.Command, statuses []model.TableStatus) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSTRATEGY\tMODE\tSOURCE ROWS\tTARGET ROWS\tGAP\tSOURCE MAX\tTARGET MAX")
	for _, s := range statuses {
		if s.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t%s\terror: %s\n", s.Table, s.Strategy, s.SyncMode, s.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Table, s.Strategy, s.SyncMode, s.SourceRows, s.TargetRows, s.RowGap,
			s.SourceMaxValue, s.TargetMaxValue)
	}
	w.Flush()
}
