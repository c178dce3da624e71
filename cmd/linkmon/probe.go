package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hazz-dev/linkmon/internal/config"
	"github.com/hazz-dev/linkmon/internal/monitor"
)

func executeProbe(ctx context.Context, out io.Writer, prober monitor.Prober, hosts []string, pc config.ProbeConfig) error {
	if len(hosts) == 0 {
		return fmt.Errorf("no hosts to probe: pass hosts as arguments or set targets in %s", cfgFile)
	}

	results := prober.ProbeMany(ctx, hosts, pc.Samples, pc.Timeout.Duration, pc.MaxConcurrency)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tSTATUS\tLATENCY\tSAMPLES\tDETAIL")
	allUp := true
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", r.Host, "error", "—", "—", r.Err)
			errs = append(errs, r.Err)
			allUp = false
			continue
		}

		status := "down"
		if r.Outcome.IsUp() {
			status = "up"
		}
		latency := "—"
		if mean, ok := r.Outcome.Mean(); ok {
			latency = fmt.Sprintf("%.2f ms", mean)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.Host,
			status,
			latency,
			len(r.Outcome.Samples),
			r.Outcome.Reason,
		)
		if !r.Outcome.IsUp() {
			allUp = false
		}
	}
	w.Flush()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if !allUp {
		return fmt.Errorf("one or more hosts are down")
	}
	return nil
}
