package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"gridwatcher/internal/storage"
)

func readingAt(base time.Time, offset time.Duration, solar, wind, consumption, battery, sun float64) storage.Reading {
	return storage.Reading{
		Timestamp:        base.Add(offset),
		SolarWatts:       solar,
		WindWatts:        wind,
		ConsumptionWatts: consumption,
		BatteryWh:        battery,
		SunIntensity:     sun,
	}
}

func TestComputeEmptyWindow(t *testing.T) {
	_, err := Compute(nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeSinglePoint(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	snap, err := Compute([]storage.Reading{
		readingAt(base, 0, 800, 400, 1500, 5000, 600),
	})
	if err != nil {
		t.Fatalf("single reading must not error: %v", err)
	}

	if snap.CorrelationCoeff != 0 {
		t.Fatalf("correlation with one point must be exactly 0, got %v", snap.CorrelationCoeff)
	}
	for source, tr := range snap.TrendPctBySource {
		if tr.Defined {
			t.Fatalf("trend for %s must be undefined with one point", source)
		}
	}
	if snap.BalanceWh != 0 {
		t.Fatalf("balance with one point must be 0, got %v", snap.BalanceWh)
	}
}

func TestComputeIdempotent(t *testing.T) {
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := []storage.Reading{
		readingAt(base, 0, 500, 300, 1500, 5000, 500),
		readingAt(base, 30*time.Minute, 700, 350, 1600, 5100, 650),
		readingAt(base, time.Hour, 900, 400, 1700, 5200, 800),
	}

	a, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}

	if a.EfficiencyPct != b.EfficiencyPct ||
		a.CorrelationCoeff != b.CorrelationCoeff ||
		a.BalanceWh != b.BalanceWh ||
		a.ReliabilityScore != b.ReliabilityScore {
		t.Fatalf("repeated computation over the same window diverged:\n%+v\n%+v", a, b)
	}
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Solar output exactly proportional to irradiance over a 24h sine.
	var readings []storage.Reading
	for h := 0; h < 24; h++ {
		sun := 400 * (1 + math.Sin(float64(h)/24*2*math.Pi))
		readings = append(readings, readingAt(base, time.Duration(h)*time.Hour, sun*1.2, 0, 1000, 5000, sun))
	}

	snap, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(snap.CorrelationCoeff-1) > 1e-6 {
		t.Fatalf("proportional series should correlate at 1.0, got %v", snap.CorrelationCoeff)
	}
}

func TestPearsonZeroVariance(t *testing.T) {
	xs := []float64{5, 5, 5, 5}
	ys := []float64{1, 2, 3, 4}
	if got := pearson(xs, ys); got != 0 {
		t.Fatalf("zero variance series must yield exactly 0, got %v", got)
	}
}

func TestTrendDirectionAndUndefined(t *testing.T) {
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	rising := []storage.Reading{
		readingAt(base, 0, 100, 0, 1000, 5000, 200),
		readingAt(base, 15*time.Minute, 100, 0, 1000, 5000, 200),
		readingAt(base, 30*time.Minute, 300, 0, 1000, 5000, 400),
		readingAt(base, 45*time.Minute, 300, 0, 1000, 5000, 400),
	}

	snap, err := Compute(rising)
	if err != nil {
		t.Fatal(err)
	}

	solar := snap.TrendPctBySource["solar"]
	if !solar.Defined {
		t.Fatal("solar trend should be defined")
	}
	if math.Abs(solar.Pct-200) > 1e-9 {
		t.Fatalf("100+100 -> 300+300 is +200%%, got %v", solar.Pct)
	}

	wind := snap.TrendPctBySource["wind"]
	if wind.Defined {
		t.Fatalf("zero previous-half wind trend must be undefined, got %+v", wind)
	}
}

func TestEfficiencyAndReliabilityBounds(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Implausibly high output against weak irradiance: efficiency must clamp.
	readings := []storage.Reading{
		readingAt(base, 0, 9000, 100, 1500, 5000, 100),
		readingAt(base, 10*time.Minute, 9000, 100, 1500, 5000, 100),
	}

	snap, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}
	if snap.EfficiencyPct < 0 || snap.EfficiencyPct > 1 {
		t.Fatalf("efficiency outside [0,1]: %v", snap.EfficiencyPct)
	}
	if snap.ReliabilityScore < 0 || snap.ReliabilityScore > 1 {
		t.Fatalf("reliability outside [0,1]: %v", snap.ReliabilityScore)
	}
}

func TestReliabilityZeroOutput(t *testing.T) {
	base := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	readings := []storage.Reading{
		readingAt(base, 0, 0, 0, 800, 5000, 0),
		readingAt(base, 10*time.Minute, 0, 0, 800, 5000, 0),
	}

	snap, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ReliabilityScore != 0 {
		t.Fatalf("zero output must score 0 reliability, got %v", snap.ReliabilityScore)
	}
}

func TestBalanceIntegration(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Constant +1000 W surplus for one hour in two 30 minute steps.
	readings := []storage.Reading{
		readingAt(base, 0, 2000, 500, 1500, 5000, 600),
		readingAt(base, 30*time.Minute, 2000, 500, 1500, 5000, 600),
		readingAt(base, time.Hour, 2000, 500, 1500, 5000, 600),
	}

	snap, err := Compute(readings)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(snap.BalanceWh-1000) > 1e-9 {
		t.Fatalf("expected +1000 Wh over one hour, got %v", snap.BalanceWh)
	}
}

func TestComputeAverages(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []storage.Reading{
		readingAt(base, 0, 100, 200, 300, 4000, 500),
		readingAt(base, time.Minute, 300, 400, 500, 6000, 700),
	}

	avg, err := ComputeAverages(readings)
	if err != nil {
		t.Fatal(err)
	}
	if avg.SolarWatts != 200 || avg.WindWatts != 300 || avg.ConsumptionWatts != 400 || avg.BatteryWh != 5000 {
		t.Fatalf("unexpected averages: %+v", avg)
	}

	if _, err := ComputeAverages(nil); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("empty window must return ErrInsufficientData, got %v", err)
	}
}

func TestPredictNextHour(t *testing.T) {
	now := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)

	// Without history the prediction falls back to the curve baseline.
	p := PredictNextHour(now, nil)
	if p.Horizon != "1h" {
		t.Fatalf("unexpected horizon %q", p.Horizon)
	}
	if p.Confidence != 0.3 {
		t.Fatalf("curve-only confidence should be 0.3, got %v", p.Confidence)
	}
	if p.PredictedSolarW <= 0 {
		t.Fatalf("noon solar baseline should be positive, got %v", p.PredictedSolarW)
	}

	// History for the target hour raises confidence and shifts the blend.
	var history []storage.Reading
	for d := 0; d < 5; d++ {
		history = append(history, storage.Reading{
			Timestamp:        now.AddDate(0, 0, -d-1).Add(time.Hour),
			SolarWatts:       2000,
			WindWatts:        500,
			ConsumptionWatts: 1800,
		})
	}

	p = PredictNextHour(now, history)
	if p.Confidence != 0.75 {
		t.Fatalf("5 matching readings should give confidence 0.75, got %v", p.Confidence)
	}
	if p.PredictedNetW != p.PredictedSolarW+p.PredictedWindW-p.PredictedConsumption {
		t.Fatal("net prediction must equal solar+wind-consumption")
	}
}

func TestPredictNightSolarZero(t *testing.T) {
	now := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	p := PredictNextHour(now, nil)
	if p.PredictedSolarW != 0 {
		t.Fatalf("night solar baseline should be zero, got %v", p.PredictedSolarW)
	}
}
