package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent readings.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show readings")
	}
	if closeStore != nil {
		defer closeStore()
	}

	readings, err := store.ListRecentReadings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Fprintln(os.Stdout, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSolar W\tWind W\tLoad W\tBattery Wh\tSun W/m2\tWind m/s\tImport W\tExport W")

	for _, r := range readings {
		fmt.Fprintf(
			writer,
			"%s\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%.1f\t%.0f\t%.0f\n",
			r.Timestamp.UTC().Format(time.RFC3339),
			r.SolarWatts,
			r.WindWatts,
			r.ConsumptionWatts,
			r.BatteryWh,
			r.SunIntensity,
			r.WindSpeed,
			r.GridImportWatts,
			r.GridExportWatts,
		)
	}

	writer.Flush()
	return nil
}
