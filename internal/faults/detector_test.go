package faults

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/analytics"
	"gridwatcher/internal/config"
	"gridwatcher/internal/storage"
)

func testFaultsConfig() config.FaultsConfig {
	return config.FaultsConfig{
		Interval:           time.Minute,
		Window:             time.Hour,
		EfficiencySoft:     0.15,
		EfficiencyHard:     0.10,
		WindOutputSoft:     0.5,
		WindOutputHard:     0.25,
		BatterySoftPct:     10,
		BatteryHardPct:     5,
		StaleAfter:         5 * time.Minute,
		ConsecutiveToFault: 3,
	}
}

// healthyWindow builds readings that keep every subsystem out of breach:
// daylight, wind matching the power curve, half-full battery, fresh data.
func healthyWindow(end time.Time) []storage.Reading {
	var readings []storage.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, storage.Reading{
			Timestamp:        end.Add(time.Duration(i-9) * time.Minute),
			SolarWatts:       700,
			WindWatts:        900,
			ConsumptionWatts: 1500,
			BatteryWh:        5000,
			SunIntensity:     600,
			WindSpeed:        8,
		})
	}
	return readings
}

func healthySnapshot() analytics.Snapshot {
	return analytics.Snapshot{EfficiencyPct: 0.20}
}

func solarSnapshot(eff float64) analytics.Snapshot {
	return analytics.Snapshot{EfficiencyPct: eff}
}

func TestSolarDegradationEmitsWarningThenFault(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := healthyWindow(now)

	// First degraded check: soft breach only, Nominal -> Warning.
	res := detector.Check(now, solarSnapshot(0.13), readings)
	if len(res.Alerts) != 1 {
		t.Fatalf("expected one alert on Nominal->Warning, got %d", len(res.Alerts))
	}
	if res.Alerts[0].Severity != severityWarning || res.Alerts[0].Subsystem != "solar" {
		t.Fatalf("unexpected alert: %+v", res.Alerts[0])
	}
	if detector.StateOf(Solar) != Warning {
		t.Fatalf("solar should be Warning, got %s", detector.StateOf(Solar))
	}

	// Second check crosses the hard threshold: Warning -> Fault.
	now = now.Add(time.Minute)
	res = detector.Check(now, solarSnapshot(0.08), healthyWindow(now))
	if len(res.Alerts) != 1 {
		t.Fatalf("expected one alert on Warning->Fault, got %d", len(res.Alerts))
	}
	if res.Alerts[0].Severity != severityFault {
		t.Fatalf("fault transition must be critical, got %q", res.Alerts[0].Severity)
	}
	if detector.StateOf(Solar) != Fault {
		t.Fatalf("solar should be Fault, got %s", detector.StateOf(Solar))
	}

	// Third check holds the fault without re-emitting.
	now = now.Add(time.Minute)
	res = detector.Check(now, solarSnapshot(0.08), healthyWindow(now))
	if len(res.Alerts) != 0 {
		t.Fatalf("holding a fault must emit nothing, got %d alerts", len(res.Alerts))
	}
}

func TestConsecutiveSoftBreachesEscalate(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	var severities []string
	for i := 0; i < 3; i++ {
		tick := now.Add(time.Duration(i) * time.Minute)
		res := detector.Check(tick, solarSnapshot(0.13), healthyWindow(tick))
		for _, a := range res.Alerts {
			severities = append(severities, a.Severity)
		}
	}

	if len(severities) != 2 || severities[0] != severityWarning || severities[1] != severityFault {
		t.Fatalf("three soft breaches should emit warning then critical, got %v", severities)
	}
	if detector.StateOf(Solar) != Fault {
		t.Fatalf("solar should be Fault after consecutive breaches, got %s", detector.StateOf(Solar))
	}
}

func TestRecoveryAfterSingleCleanCheck(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	detector.Check(now, solarSnapshot(0.08), healthyWindow(now))

	now = now.Add(time.Minute)
	res := detector.Check(now, healthySnapshot(), healthyWindow(now))
	if len(res.Alerts) != 0 {
		t.Fatalf("recovery must not emit alerts, got %d", len(res.Alerts))
	}
	if len(res.Recovered) != 1 || res.Recovered[0] != Solar {
		t.Fatalf("solar should be reported recovered, got %v", res.Recovered)
	}
	if detector.StateOf(Solar) != Nominal {
		t.Fatalf("solar should be Nominal after a clean check, got %s", detector.StateOf(Solar))
	}
}

func TestSolarCheckSkippedAtNight(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)

	var readings []storage.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, storage.Reading{
			Timestamp:        now.Add(time.Duration(i-9) * time.Minute),
			WindWatts:        900,
			ConsumptionWatts: 800,
			BatteryWh:        5000,
			SunIntensity:     0,
			WindSpeed:        8,
		})
	}

	// Zero efficiency at night must not trip the solar check.
	res := detector.Check(now, solarSnapshot(0), readings)
	for _, a := range res.Alerts {
		if a.Subsystem == "solar" {
			t.Fatalf("solar alert emitted at night: %+v", a)
		}
	}
	if detector.StateOf(Solar) != Nominal {
		t.Fatalf("solar machine should be frozen Nominal at night, got %s", detector.StateOf(Solar))
	}
}

func TestWindUnderperformance(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// 8 m/s mean wind should produce around 890 W; 100 W is a clear breach.
	var readings []storage.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, storage.Reading{
			Timestamp:        now.Add(time.Duration(i-9) * time.Minute),
			SolarWatts:       700,
			WindWatts:        100,
			ConsumptionWatts: 1500,
			BatteryWh:        5000,
			SunIntensity:     600,
			WindSpeed:        8,
		})
	}

	res := detector.Check(now, healthySnapshot(), readings)
	found := false
	for _, a := range res.Alerts {
		if a.Subsystem == "wind" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a wind alert for underperforming turbine")
	}
}

func TestWindCheckSkippedInCalm(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	var readings []storage.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, storage.Reading{
			Timestamp:        now.Add(time.Duration(i-9) * time.Minute),
			SolarWatts:       700,
			ConsumptionWatts: 1500,
			BatteryWh:        5000,
			SunIntensity:     600,
			WindSpeed:        2,
		})
	}

	res := detector.Check(now, healthySnapshot(), readings)
	for _, a := range res.Alerts {
		if a.Subsystem == "wind" {
			t.Fatalf("wind alert emitted in calm conditions: %+v", a)
		}
	}
}

func TestBatteryLowLevel(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	readings := healthyWindow(now)
	readings[len(readings)-1].BatteryWh = 300

	res := detector.Check(now, healthySnapshot(), readings)
	found := false
	for _, a := range res.Alerts {
		if a.Subsystem == "battery" && a.Severity == severityWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a battery warning at 3%% charge, got %+v", res.Alerts)
	}
}

func TestConnectivityStaleReadings(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Latest reading is 20 minutes old, well past twice the staleness bound.
	readings := healthyWindow(now.Add(-20 * time.Minute))

	res := detector.Check(now, healthySnapshot(), readings)
	found := false
	for _, a := range res.Alerts {
		if a.Subsystem == "connectivity" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a connectivity alert for stale readings")
	}
}

func TestConnectivityEmptyWindow(t *testing.T) {
	detector := NewDetector(testFaultsConfig(), zerolog.Nop())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := detector.Check(now, analytics.Snapshot{}, nil)
	if len(res.Alerts) != 1 || res.Alerts[0].Subsystem != "connectivity" {
		t.Fatalf("empty window should produce exactly the connectivity alert, got %+v", res.Alerts)
	}
	if res.Alerts[0].Severity != severityWarning {
		t.Fatalf("first breach from Nominal enters Warning, got %q", res.Alerts[0].Severity)
	}
}
