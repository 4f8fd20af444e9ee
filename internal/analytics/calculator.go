package analytics

import (
	"errors"
	"math"
	"time"

	"gridwatcher/internal/storage"
)

var (
	// ErrInsufficientData indicates a metric window with zero readings.
	ErrInsufficientData = errors.New("analytics: insufficient data in window")
)

// Trend is a percentage change between the two halves of a window.
// Defined is false when the previous half total is zero, in which case the
// change is undefined rather than infinite.
type Trend struct {
	Pct     float64 `json:"pct"`
	Defined bool    `json:"defined"`
}

// Snapshot summarises a window of readings. It is a pure function of the
// window and is recomputed on demand, never persisted.
type Snapshot struct {
	WindowStart      time.Time        `json:"window_start"`
	WindowEnd        time.Time        `json:"window_end"`
	EfficiencyPct    float64          `json:"efficiency_pct"`
	CorrelationCoeff float64          `json:"correlation_coeff"`
	TrendPctBySource map[string]Trend `json:"trend_pct_by_source"`
	BalanceWh        float64          `json:"balance_wh"`
	ReliabilityScore float64          `json:"reliability_score"`
}

// Averages holds mean values over a window.
type Averages struct {
	SolarWatts       float64 `json:"avg_solar_watts"`
	WindWatts        float64 `json:"avg_wind_watts"`
	ConsumptionWatts float64 `json:"avg_consumption_watts"`
	BatteryWh        float64 `json:"avg_battery_wh"`
}

// Compute derives a Snapshot from an ordered window of readings. The only
// error condition is an empty window; degenerate statistics (single point,
// zero variance, zero previous-period total) produce the documented
// sentinel values instead of failing.
func Compute(readings []storage.Reading) (Snapshot, error) {
	if len(readings) == 0 {
		return Snapshot{}, ErrInsufficientData
	}

	snap := Snapshot{
		WindowStart: readings[0].Timestamp,
		WindowEnd:   readings[len(readings)-1].Timestamp,
	}

	snap.EfficiencyPct = efficiency(readings)
	snap.CorrelationCoeff = pearson(
		extract(readings, func(r storage.Reading) float64 { return r.SunIntensity }),
		extract(readings, func(r storage.Reading) float64 { return r.SolarWatts }),
	)
	snap.TrendPctBySource = map[string]Trend{
		"solar":       trend(readings, func(r storage.Reading) float64 { return r.SolarWatts }),
		"wind":        trend(readings, func(r storage.Reading) float64 { return r.WindWatts }),
		"consumption": trend(readings, func(r storage.Reading) float64 { return r.ConsumptionWatts }),
	}
	snap.BalanceWh = balance(readings)
	snap.ReliabilityScore = reliability(readings)

	return snap, nil
}

// ComputeAverages returns mean generation, consumption, and storage levels.
func ComputeAverages(readings []storage.Reading) (Averages, error) {
	if len(readings) == 0 {
		return Averages{}, ErrInsufficientData
	}

	var avg Averages
	for _, r := range readings {
		avg.SolarWatts += r.SolarWatts
		avg.WindWatts += r.WindWatts
		avg.ConsumptionWatts += r.ConsumptionWatts
		avg.BatteryWh += r.BatteryWh
	}
	n := float64(len(readings))
	avg.SolarWatts /= n
	avg.WindWatts /= n
	avg.ConsumptionWatts /= n
	avg.BatteryWh /= n
	return avg, nil
}

// efficiency is actual solar output over the theoretical maximum implied by
// the observed irradiance, clamped to [0, 1]. The theoretical maximum uses
// the panels' best-case efficiency rating so the ratio stays comparable
// across windows.
func efficiency(readings []storage.Reading) float64 {
	const referenceCapacityW = 5000
	const referenceEfficiency = 0.25

	var actual, theoretical float64
	for _, r := range readings {
		actual += r.SolarWatts
		theoretical += (r.SunIntensity / 1000) * referenceCapacityW * referenceEfficiency
	}
	if theoretical <= 0 {
		return 0
	}
	return clamp01(actual / theoretical)
}

// pearson computes the Pearson correlation coefficient between two equal
// length series. Fewer than two points or zero variance in either series
// yields exactly 0.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// trend compares the totals of the two halves of the window. An empty or
// zero-total previous half makes the trend undefined.
func trend(readings []storage.Reading, value func(storage.Reading) float64) Trend {
	mid := len(readings) / 2
	if mid == 0 {
		return Trend{}
	}

	var prev, latest float64
	for _, r := range readings[:mid] {
		prev += value(r)
	}
	for _, r := range readings[mid:] {
		latest += value(r)
	}

	if prev == 0 {
		return Trend{}
	}
	return Trend{Pct: (latest - prev) / prev * 100, Defined: true}
}

// balance integrates net generation over the window using the spacing
// between consecutive readings.
func balance(readings []storage.Reading) float64 {
	var wh float64
	for i := 1; i < len(readings); i++ {
		dt := readings[i].Timestamp.Sub(readings[i-1].Timestamp).Hours()
		net := readings[i].SolarWatts + readings[i].WindWatts - readings[i].ConsumptionWatts
		wh += net * dt
	}
	return wh
}

// reliability is one minus the coefficient of variation of total output,
// clamped to [0, 1]. Zero mean output scores 0.
func reliability(readings []storage.Reading) float64 {
	outputs := extract(readings, func(r storage.Reading) float64 {
		return r.SolarWatts + r.WindWatts
	})

	var sum float64
	for _, v := range outputs {
		sum += v
	}
	mean := sum / float64(len(outputs))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, v := range outputs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(outputs))

	cov := math.Sqrt(variance) / mean
	return clamp01(1 - cov)
}

func extract(readings []storage.Reading, value func(storage.Reading) float64) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = value(r)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
