package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gridwatcher/internal/analytics"
	"gridwatcher/internal/faults"
	"gridwatcher/internal/storage"
)

// SimulateFault drives the fault detector with degraded synthetic readings
// so that operators can exercise the alert pipeline end to end.
func (a *App) SimulateFault(ctx context.Context, opts SimulateFaultOptions) error {
	sub, ok := parseSubsystem(opts.Subsystem)
	if !ok {
		return fmt.Errorf("unknown subsystem %q", opts.Subsystem)
	}

	checks := opts.Checks
	if checks <= 0 {
		checks = a.Config.Faults.ConsecutiveToFault + 1
	}

	notifier := a.newNotifier()
	detector := faults.NewDetector(a.Config.Faults, a.Logger)

	now := time.Now().UTC()
	for i := 0; i < checks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		checkTime := now.Add(time.Duration(i) * a.Config.Faults.Interval)
		readings := degradedWindow(sub, checkTime, a.Config.Faults.Window, a.Config.Generator.BatteryCapacityWh)

		snapshot, err := analytics.Compute(readings)
		if err != nil && !errors.Is(err, analytics.ErrInsufficientData) {
			return err
		}

		result := detector.Check(checkTime, snapshot, readings)
		for _, alert := range result.Alerts {
			fmt.Fprintf(os.Stdout, "[check %d] %s/%s: %s\n", i+1, alert.Subsystem, alert.Severity, alert.Message)
			if notifier != nil {
				if err := notifier.Notify(ctx, alert); err != nil {
					a.Logger.Error().Err(err).Msg("simulated alert notify failed")
				}
			}
		}
		if len(result.Alerts) == 0 {
			fmt.Fprintf(os.Stdout, "[check %d] state=%s, no new alert\n", i+1, detector.StateOf(sub))
		}
	}

	return nil
}

func parseSubsystem(name string) (faults.Subsystem, bool) {
	for _, sub := range faults.Subsystems() {
		if sub.String() == name {
			return sub, true
		}
	}
	return 0, false
}

// degradedWindow builds a window of readings where the target subsystem is
// clearly below its hard threshold while other subsystems stay healthy.
func degradedWindow(sub faults.Subsystem, end time.Time, window time.Duration, batteryCapacityWh float64) []storage.Reading {
	const step = time.Minute
	count := int(window / step)
	if count < 2 {
		count = 2
	}

	var readings []storage.Reading
	for i := 0; i < count; i++ {
		ts := end.Add(-window + time.Duration(i)*step)
		r := storage.Reading{
			Timestamp:        ts,
			SolarWatts:       600,
			WindWatts:        900,
			ConsumptionWatts: 1800,
			BatteryWh:        batteryCapacityWh * 0.5,
			SunIntensity:     600,
			WindSpeed:        8,
			PanelTempC:       32,
			PanelEfficiency:  0.18,
		}

		switch sub {
		case faults.Solar:
			// Strong sun but almost no output drives efficiency below the
			// hard threshold.
			r.SolarWatts = 40
			r.PanelEfficiency = 0.05
		case faults.Wind:
			r.WindWatts = 50
		case faults.Battery:
			r.BatteryWh = batteryCapacityWh * 0.03
		case faults.Connectivity:
			// Leave only a single stale reading far in the past.
			if i > 0 {
				continue
			}
			r.Timestamp = end.Add(-window)
		}

		readings = append(readings, r)
	}

	return readings
}
