package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the most recent audited triggers.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("database not configured; cannot show triggers")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	records, err := audit.ListRecentTriggers(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no triggers recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tSide\tThreshold\tObserved\tReset(min)\tChannels")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\n",
			record.FiredAt.UTC().Format(time.RFC3339),
			record.Side,
			record.ThresholdPrice.StringFixed(8),
			record.ObservedPrice.StringFixed(8),
			record.ResetMinutes,
			strings.Join(record.Channels, ","),
		)
	}

	writer.Flush()
	return nil
}
