package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpapi "recurring-billing-backend/internal/api/http"
	"recurring-billing-backend/internal/app"
	"recurring-billing-backend/internal/config"
	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/utils"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the aging report",
	Long: `Print every active schedule due on or before the as-of date with its
paid and outstanding amounts for the current cycle, days late past grace,
and aging bucket. Rows are ordered by due date.`,
	Example: `  # Everything due by today in the business timezone
  agingctl report

  # Overdue rentals as of a past date, as JSON
  agingctl report --as-of 2024-03-10 --type rental --overdue-only --output json`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("as-of", "", "As-of date (format: YYYY-MM-DD, default: today in the business timezone)")
	reportCmd.Flags().String("type", "", "Schedule type filter: instalment or rental")
	reportCmd.Flags().Bool("overdue-only", false, "Only list schedules with an outstanding balance")
	reportCmd.Flags().StringP("output", "o", "table", "Output format: table or json")
}

func runReport(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	asOfStr, _ := cmd.Flags().GetString("as-of")
	scheduleType, _ := cmd.Flags().GetString("type")
	overdueOnly, _ := cmd.Flags().GetBool("overdue-only")
	output, _ := cmd.Flags().GetString("output")

	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output %q: use table or json", output)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the report; logs go to stderr.
	logger.InitializeWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	asOf := utils.Today(cfg.Location())
	if asOfStr != "" {
		if asOf, err = utils.ParseDate(asOfStr); err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}
	filter := domain.AgingFilter{
		ScheduleType: domain.ScheduleType(strings.ToLower(scheduleType)),
		OverdueOnly:  overdueOnly,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	components, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	report, err := components.Aging.Generate(ctx, asOf, filter)
	if err != nil {
		return err
	}

	if output == "json" {
		return renderJSON(cmd.OutOrStdout(), report, cfg.Billing.Currency)
	}
	return renderTable(cmd.OutOrStdout(), report, cfg.Billing.Currency)
}

// renderJSON emits the same document GET /api/outstanding serves.
func renderJSON(w io.Writer, report *domain.AgingReport, currency string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(httpapi.NewOutstandingResponse(report, currency))
}

func renderTable(w io.Writer, report *domain.AgingReport, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "ORDER\tCUSTOMER\tPHONE\tTYPE\tDUE\tAMOUNT (%s)\tPAID\tOUTSTANDING\tDAYS LATE\tBUCKET\n", currency)
	var total int64
	for _, rec := range report.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.OrderCode,
			rec.CustomerName,
			rec.Phone,
			rec.ScheduleType,
			rec.DueDate,
			utils.FormatMajor(rec.AmountCents),
			utils.FormatMajor(rec.PaidCents),
			utils.FormatMajor(rec.OutstandingCents),
			rec.DaysLate,
			rec.Bucket)
		total += rec.OutstandingCents
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d record(s) as of %s, outstanding %s %s\n",
		len(report.Records), report.AsOf, currency, utils.FormatMajor(total))
	if report.Omitted > 0 {
		fmt.Fprintf(w, "%d schedule(s) omitted:\n", report.Omitted)
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.ScheduleID, f.Reason)
		}
	}
	return nil
}
