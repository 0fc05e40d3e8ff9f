package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"adsinsight/internal/db"
	"adsinsight/internal/googleads"
)

func newSyncCmd() *cobra.Command {
	var client, start, end string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull campaigns and daily metrics from the Google Ads API",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, err := parseClient(client)
			if err != nil {
				return err
			}
			from, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			to, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}
			if from == nil || to == nil {
				return errors.New("--start and --end are required")
			}
			if from.Time().After(to.Time()) {
				return errors.New("--start must not be after --end")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			api := googleads.NewClient(e.cfg.GoogleAds)
			if !api.Configured() {
				return errors.New("APP_GOOGLE_ADS_DEVELOPER_TOKEN and APP_GOOGLE_ADS_ACCESS_TOKEN are required")
			}
			lookup := func(ctx context.Context, id uuid.UUID) (*db.Client, error) {
				return db.FindClient(ctx, e.db, id)
			}
			// One pull per process; the cache only spans this run.
			syncer := googleads.NewSyncer(api, googleads.NewConnectionCache(time.Hour), lookup, e.coordinator, e.cfg.GoogleAds.LoginCustomerID)
			return report(syncer.Sync(cmd.Context(), clientID, *from, *to))
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "Client UUID (required)")
	cmd.Flags().StringVar(&start, "start", "", "First day to pull (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&end, "end", "", "Last day to pull (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}
