// Command adsimport runs ingest jobs outside the HTTP server: local CSV or
// XLSX imports, Google Ads pulls and schema migrations.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	"adsinsight/internal/db"
	"adsinsight/internal/ingest"
)

func main() {
	_ = godotenv.Load()
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:           "adsimport",
		Short:         "Import Google Ads reports into adsinsight",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCSVCmd(), newSyncCmd(), newMigrateCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "adsimport:", err)
		os.Exit(1)
	}
}

// env is what every subcommand that touches the database needs.
type env struct {
	cfg         *config.Config
	db          *gorm.DB
	coordinator *ingest.Coordinator
}

func openEnv() (*env, error) {
	cfg := config.Load()
	sqlDB, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{
		cfg:         cfg,
		db:          sqlDB,
		coordinator: ingest.NewCoordinator(db.NewIngestStore(sqlDB), cfg.IngestBatchSize, nil),
	}, nil
}

func parseClient(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid --client %q: must be a UUID", raw)
	}
	return id, nil
}

func parseDateFlag(name, raw string) (*db.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, ok := ingest.ParseDate(raw)
	if !ok {
		return nil, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, raw)
	}
	return &d, nil
}

// report prints the outcome of a run as a short summary on stdout.
func report(res *ingest.Result, err error) error {
	if res != nil {
		fmt.Printf("import %s: %s\n", res.ImportID, res.Status)
		for _, ds := range db.Datasets {
			c, ok := res.Summary[ds]
			if !ok {
				continue
			}
			fmt.Printf("  %-22s received=%d mapped=%d upserted=%d skipped=%d\n",
				ds, c.Received, c.Mapped, c.Upserted, c.Skipped)
		}
		if len(res.AppliedTables) > 0 {
			fmt.Printf("  tables: %s\n", strings.Join(res.AppliedTables, ", "))
		}
	}
	return err
}
