package app

import (
	"context"
	"errors"
	"time"
)

// Seed generates and stores historical readings so that the dashboard and
// analytics have data to work with on a fresh database.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.Days <= 0 {
		return errors.New("--days must be positive")
	}

	step := opts.Step
	if step <= 0 {
		step = a.Config.Generator.Interval
	}
	if step <= 0 {
		return errors.New("generator interval is not configured")
	}

	end := time.Now().UTC().Truncate(step)
	start := end.AddDate(0, 0, -opts.Days)

	if opts.DryRun {
		a.Logger.Warn().Msg("seed dry-run: nothing will be written")
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st == nil && !opts.DryRun {
		return errors.New("database.dsn not configured; cannot seed")
	}
	if closeStore != nil {
		defer closeStore()
	}

	generator := a.newGenerator()
	batteryWh := a.Config.Generator.InitialBatteryWh

	inserted := 0
	failed := 0
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		reading := generator.Tick(ts, batteryWh, step)
		batteryWh = reading.BatteryWh

		if opts.DryRun {
			inserted++
			continue
		}

		if err := st.InsertReading(ctx, reading); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("timestamp", ts).Msg("seed insert failed")
			continue
		}
		inserted++
	}

	a.Logger.Info().Int("inserted", inserted).Int("failed", failed).Msg("seed complete")
	if failed > 0 {
		return errors.New("some readings failed to insert; check logs")
	}
	return nil
}
