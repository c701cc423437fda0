package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saracrm/courier/internal/core/config"
	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show retry queue depth and recent failures",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	queueRepo := postgres.NewRetryQueueRepo(db)
	counts, err := queueRepo.CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to query retry queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tENTRIES")
	for _, status := range []domain.RetryEntryStatus{
		domain.RetryEntryPending,
		domain.RetryEntryDelivered,
		domain.RetryEntryFailedPermanent,
	} {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
	}
	_ = w.Flush()

	if pending := counts[domain.RetryEntryPending]; pending > 0 {
		fmt.Println()
		entries, err := queueRepo.GetPending(ctx, 10)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintln(w, "ID\tRECIPIENT\tTYPE\tATTEMPTS\tLAST ERROR")
		for _, e := range entries {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.60s\n",
				e.ID, e.RecipientPhone, e.MessageType, e.Attempts, e.MaxAttempts, e.LastError)
		}
		_ = w.Flush()
	}
}
