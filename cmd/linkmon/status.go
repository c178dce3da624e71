package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/linkmon/internal/report"
	"github.com/hazz-dev/linkmon/internal/storage"
)

type statusStore interface {
	AllLatest(ctx context.Context, kind report.Kind) ([]storage.Measurement, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	latency, err := db.AllLatest(ctx, report.KindLatency)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	bw, err := db.AllLatest(ctx, report.KindBandwidth)
	if err != nil {
		return fmt.Errorf("querying bandwidth: %w", err)
	}

	if len(latency) == 0 && len(bw) == 0 {
		fmt.Fprintln(out, "No measurements yet. Run 'linkmon serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tKIND\tSTATUS\tRESULT\tLAST MEASURED\tDETAIL")
	for _, m := range append(latency, bw...) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Host,
			m.Kind,
			stateName(m.IsUp),
			result(m),
			humanize.Time(m.MeasuredAt),
			m.Detail,
		)
	}
	w.Flush()
	return nil
}

func stateName(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func result(m storage.Measurement) string {
	switch {
	case m.LatencyMs != nil:
		return fmt.Sprintf("%.2f ms", *m.LatencyMs)
	case m.DownMbps != nil && m.UpMbps != nil:
		return fmt.Sprintf("%.3f down / %.3f up Mbit/s", *m.DownMbps, *m.UpMbps)
	case m.DownMbps != nil:
		return fmt.Sprintf("%.3f down Mbit/s", *m.DownMbps)
	default:
		return "—"
	}
}
