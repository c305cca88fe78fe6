package main

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RichardFellows/data-refresh/internal/database"
	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/refresh"
	"github.com/RichardFellows/data-refresh/internal/repository"
	"github.com/RichardFellows/data-refresh/internal/service"
)

var (
	runDryRun bool
	runYes    bool
)

var runCmd = &cobra.Command{
	Use:   "run [table]",
	Short: "Run a refresh pass",
	Long: `Refreshes one named table, or every configured table when no table is
given. Interrupting with Ctrl-C stops at the next chunk or step boundary
and cleans up any staging objects.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "report what would run without touching either database")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(runCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := &service.TriggerRequest{DryRun: runDryRun}
	tableCount := len(cfg.Tables)
	if len(args) > 0 {
		req.Table = args[0]
		tableCount = 1
	}

	if !runDryRun && !cfg.Settings.DryRun && !runYes {
		prompt := fmt.Sprintf("This will refresh %d table(s) in %s on %s. Continue? [y/N] ",
			tableCount, cfg.Databases.Target.Database, cfg.Databases.Target.Server)
		if !confirm(cmd, prompt) {
			cmd.Println("Aborted.")
			return nil
		}
	}

	pool := database.NewConnectionPool(&cfg.Databases.Source, &cfg.Databases.Target, cfg.Settings.ConnectionTimeout)
	defer pool.CloseAll()

	svc := service.NewRefreshService(
		cfg,
		pool,
		refresh.NewLockRegistry(),
		repository.NewMemoryRunRepository(0),
		service.NewMetricsCollector(),
	)

	resp, err := svc.Trigger(ctx, req, model.RunTriggerCLI)
	if err != nil {
		return err
	}

	printResults(cmd, resp)

	if resp.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d refreshes failed", resp.Summary.Failed, resp.Summary.Tables)
	}
	return nil
}

func printResults(cmd *cobra.Command, resp *service.TriggerResponse) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSTRATEGY\tMODE\tSTATUS\tROWS\tDURATION\tDETAIL")
	for _, r := range resp.Results {
		detail := r.Message
		if r.Status == model.RunStatusFailed {
			detail = fmt.Sprintf("%s at %s: %s", r.ErrorKind, r.Step, r.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1fs\t%s\n",
			r.Table, r.Strategy, r.SyncMode, r.Status, r.RowsAffected, r.DurationSeconds, detail)
	}
	w.Flush()

	s := resp.Summary
	cmd.Printf("\n%d succeeded, %d skipped, %d failed; %d rows in %.1fs\n",
		s.Succeeded, s.Skipped, s.Failed, s.RowsProcessed, s.DurationSeconds)
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Print(prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
