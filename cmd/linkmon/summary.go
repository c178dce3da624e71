package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/linkmon/internal/storage"
	"github.com/hazz-dev/linkmon/internal/summary"
)

type summaryStore interface {
	StatesSince(ctx context.Context, since time.Time) ([]storage.Measurement, error)
}

func executeSummary(cmd *cobra.Command, db summaryStore, since time.Time) error {
	out := cmd.OutOrStdout()

	ms, err := db.StatesSince(context.Background(), since)
	if err != nil {
		return fmt.Errorf("querying measurements: %w", err)
	}

	hosts := summary.Summarize(ms)
	if len(hosts) == 0 {
		fmt.Fprintf(out, "No measurements since %s.\n", since.Local().Format("2006-01-02 15:04:05"))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tSPAN\tSAMPLES\tUPTIME\tMEAN\tPEAK\tDROPOUTS\tMAX\tWORST 10%\tBEST 10%\tMIN")
	for _, h := range hosts {
		d := h.Dropouts
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f%%\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			h.Host,
			d.Span.Round(time.Second),
			humanize.Comma(int64(h.Samples)),
			h.UptimePct,
			ms2str(h.MeanLatency),
			ms2str(h.PeakLatency),
			d.Count,
			dur(d.Max, len(d.Durations)),
			dur(d.WorstTenth, len(d.Durations)),
			dur(d.BestTenth, len(d.Durations)),
			dur(d.Min, len(d.Durations)),
		)
	}
	w.Flush()
	return nil
}

func ms2str(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f ms", *v)
}

func dur(d time.Duration, n int) string {
	if n == 0 {
		return "—"
	}
	return d.Round(time.Second).String()
}
