package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gridwatcher/internal/storage"
)

// Export renders historical readings as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Generator.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	readings, err := store.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReadings(readings []storage.Reading, max int) []storage.Reading {
	if max <= 0 || len(readings) <= max {
		return readings
	}

	result := make([]storage.Reading, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []storage.Reading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "solar_watts", "wind_watts", "consumption_watts", "battery_wh", "sun_intensity", "wind_speed", "panel_temp_c", "panel_efficiency", "grid_import_watts", "grid_export_watts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.2f", r.SolarWatts),
			fmt.Sprintf("%.2f", r.WindWatts),
			fmt.Sprintf("%.2f", r.ConsumptionWatts),
			fmt.Sprintf("%.2f", r.BatteryWh),
			fmt.Sprintf("%.2f", r.SunIntensity),
			fmt.Sprintf("%.2f", r.WindSpeed),
			fmt.Sprintf("%.2f", r.PanelTempC),
			fmt.Sprintf("%.4f", r.PanelEfficiency),
			fmt.Sprintf("%.2f", r.GridImportWatts),
			fmt.Sprintf("%.2f", r.GridExportWatts),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeReadingsPNG(path string, readings []storage.Reading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	solar := make([]float64, len(readings))
	wind := make([]float64, len(readings))
	consumption := make([]float64, len(readings))
	battery := make([]float64, len(readings))

	for i, r := range readings {
		x[i] = r.Timestamp
		solar[i] = r.SolarWatts
		wind[i] = r.WindWatts
		consumption[i] = r.ConsumptionWatts
		battery[i] = r.BatteryWh
	}

	wattFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Power (W)",
			ValueFormatter: wattFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Battery (Wh)",
			ValueFormatter: wattFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Solar",
				XValues: x,
				YValues: solar,
			},
			chart.TimeSeries{
				Name:    "Wind",
				XValues: x,
				YValues: wind,
			},
			chart.TimeSeries{
				Name:    "Consumption",
				XValues: x,
				YValues: consumption,
			},
			chart.TimeSeries{
				Name:    "Battery",
				XValues: x,
				YValues: battery,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
