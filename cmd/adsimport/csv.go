package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"adsinsight/internal/ingest"
)

type csvOptions struct {
	file         string
	client       string
	report       string
	campaignID   string
	campaignName string
	start        string
	end          string
	applyTo      string
}

func newCSVCmd() *cobra.Command {
	var opts csvOptions

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Import a Google Ads CSV or XLSX report for one client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCSV(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Path to the .csv or .xlsx report (required)")
	cmd.Flags().StringVar(&opts.client, "client", "", "Client UUID (required)")
	cmd.Flags().StringVar(&opts.report, "report", "", "Report name recorded on the import (default: file name)")
	cmd.Flags().StringVar(&opts.campaignID, "campaign-id", "", "Campaign id for rows that carry none")
	cmd.Flags().StringVar(&opts.campaignName, "campaign-name", "", "Campaign name for rows that carry none")
	cmd.Flags().StringVar(&opts.start, "start", "", "Range start for rows without dates (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "Range end for rows without dates (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.applyTo, "apply-to", "auto", "Target dataset: auto, metrics, keywords or none")

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func runCSV(cmd *cobra.Command, opts csvOptions) error {
	clientID, err := parseClient(opts.client)
	if err != nil {
		return err
	}
	applyTo, err := ingest.ParseApplyTo(opts.applyTo)
	if err != nil {
		return err
	}
	start, err := parseDateFlag("start", opts.start)
	if err != nil {
		return err
	}
	end, err := parseDateFlag("end", opts.end)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.file, err)
	}
	name := filepath.Base(opts.file)
	table, err := ingest.DecodeFile(name, data)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rows, %d columns (%s", name, len(table.Rows), len(table.Headers), table.Encoding)
	if table.Delimiter != "" {
		fmt.Printf(", delimiter %q", table.Delimiter)
	}
	fmt.Println(")")

	e, err := openEnv()
	if err != nil {
		return err
	}

	upload := ingest.Upload{
		ClientID:   clientID,
		FileName:   name,
		ReportName: opts.report,
		ApplyTo:    applyTo,
		Fallback: ingest.Fallback{
			Start:        start,
			End:          end,
			CampaignID:   opts.campaignID,
			CampaignName: opts.campaignName,
		},
	}
	req := upload.Request(table)
	if req.SkipApply {
		fmt.Println("apply-to none: storing raw rows only")
	} else {
		fmt.Printf("applying to %s\n", req.Sets[0].Dataset)
	}
	return report(e.coordinator.Run(cmd.Context(), req))
}
