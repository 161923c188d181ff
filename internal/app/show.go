package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent snapshots and alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	snapshots, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tFetched (UTC)\tSource\tBTC/USD\tETH/USD\tEUR\tGBP\tJPY")

	for _, snap := range snapshots {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			snap.ID,
			snap.FetchedAt.UTC().Format(time.RFC3339),
			snap.Source,
			formatOptional(snap.BTCUSD, 2),
			formatOptional(snap.ETHUSD, 2),
			formatOptional(snap.EURRate, 4),
			formatOptional(snap.GBPRate, 4),
			formatOptional(snap.JPYRate, 2),
		)
	}
	writer.Flush()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Alert\tAsset\tPrevious\tCurrent\tChange%\tSnapshot\tCreated (UTC)")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			alert.ID,
			alert.Asset,
			alert.PreviousPrice.StringFixed(2),
			alert.CurrentPrice.StringFixed(2),
			alert.ChangePct.StringFixed(2),
			alert.SnapshotID,
			alert.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()
	return nil
}

func formatOptional(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}
