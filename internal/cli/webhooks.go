package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saracrm/courier/internal/core/config"
	"github.com/saracrm/courier/internal/infra/storage/postgres"
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "List configured webhook endpoints",
	Run:   runWebhooks,
}

func init() {
	rootCmd.AddCommand(webhooksCmd)
}

func runWebhooks(cmd *cobra.Command, args []string) {
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

	configs, err := postgres.NewWebhookRepo(db).GetAll(ctx)
	if err != nil {
		slog.Error("Failed to query webhooks", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tURL\tACTIVE\tEVENTS")
	for _, c := range configs {
		events := make([]string, len(c.Events))
		for i, e := range c.Events {
			events[i] = string(e)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			c.ID, c.Name, c.URL, c.Active, strings.Join(events, ","))
	}
	_ = w.Flush()
}
