package simulator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testGenerator(seed int64) *Generator {
	return New(Options{
		SolarCapacityW:    5000,
		WindCapacityW:     3000,
		BaseConsumptionW:  2000,
		BatteryCapacityWh: 10000,
	}, rand.New(rand.NewSource(seed)), zerolog.Nop())
}

func TestTickNightHasNoSolarOutput(t *testing.T) {
	gen := testGenerator(1)
	night := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		reading := gen.Tick(night, 5000, 30*time.Second)
		if reading.SolarWatts != 0 {
			t.Fatalf("solar output at night should be zero, got %.2f", reading.SolarWatts)
		}
		if reading.SunIntensity != 0 {
			t.Fatalf("sun intensity at night should be zero, got %.2f", reading.SunIntensity)
		}
	}
}

func TestTickMiddayProducesSolar(t *testing.T) {
	gen := testGenerator(1)
	noon := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	produced := false
	for i := 0; i < 50; i++ {
		reading := gen.Tick(noon, 5000, 30*time.Second)
		if reading.SolarWatts > 0 {
			produced = true
		}
		if reading.SunIntensity < 0 {
			t.Fatalf("sun intensity must be non-negative, got %.2f", reading.SunIntensity)
		}
	}
	if !produced {
		t.Fatal("expected solar production at noon")
	}
}

func TestTickBatteryStaysWithinCapacity(t *testing.T) {
	gen := testGenerator(7)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	batteryWh := 5000.0
	for i := 0; i < 24*60; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		reading := gen.Tick(ts, batteryWh, time.Minute)
		if reading.BatteryWh < 0 || reading.BatteryWh > gen.BatteryCapacityWh() {
			t.Fatalf("battery out of bounds at %s: %.2f", ts, reading.BatteryWh)
		}
		batteryWh = reading.BatteryWh
	}
}

func TestTickEfficiencyBounds(t *testing.T) {
	gen := testGenerator(11)
	noon := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		reading := gen.Tick(noon, 5000, 30*time.Second)
		if reading.PanelEfficiency < minPanelEfficiency || reading.PanelEfficiency > maxPanelEfficiency {
			t.Fatalf("efficiency outside [%.2f, %.2f]: %.4f", minPanelEfficiency, maxPanelEfficiency, reading.PanelEfficiency)
		}
	}
}

func TestTickConsumptionFloor(t *testing.T) {
	gen := testGenerator(3)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 24*4; i++ {
		ts := start.Add(time.Duration(i) * 15 * time.Minute)
		reading := gen.Tick(ts, 5000, 15*time.Minute)
		if reading.ConsumptionWatts < minConsumptionWatts {
			t.Fatalf("consumption below floor at %s: %.2f", ts, reading.ConsumptionWatts)
		}
	}
}

func TestTickDeterministicWithSeed(t *testing.T) {
	ts := time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

	a := testGenerator(42).Tick(ts, 5000, 30*time.Second)
	b := testGenerator(42).Tick(ts, 5000, 30*time.Second)

	if a != b {
		t.Fatalf("seeded generators diverged:\n%+v\n%+v", a, b)
	}
}

func TestSolarFactorShape(t *testing.T) {
	if solarFactor(5.9) != 0 {
		t.Fatal("factor before dawn should be zero")
	}
	if solarFactor(18.1) != 0 {
		t.Fatal("factor after dusk should be zero")
	}
	if noon := solarFactor(12); noon < 0.99 {
		t.Fatalf("factor at noon should be near 1, got %.3f", noon)
	}
	if morning, evening := solarFactor(9), solarFactor(15); morning < 0.69 || evening < 0.69 {
		t.Fatalf("shoulder factors too low: %.3f %.3f", morning, evening)
	}
}

func TestIntegrateBatteryGridFlows(t *testing.T) {
	gen := testGenerator(1)

	// Battery nearly empty and still draining: deficit comes from the grid.
	batteryWh, gridImport, gridExport := gen.integrateBattery(50, 500, 2000, time.Minute)
	if batteryWh < 0 {
		t.Fatalf("battery went negative: %.2f", batteryWh)
	}
	if gridImport != 1500 {
		t.Fatalf("expected 1500 W grid import, got %.2f", gridImport)
	}
	if gridExport != 0 {
		t.Fatalf("unexpected grid export: %.2f", gridExport)
	}

	// Battery nearly full and still charging: surplus is exported.
	batteryWh, gridImport, gridExport = gen.integrateBattery(9900, 3000, 1000, time.Minute)
	if batteryWh > gen.BatteryCapacityWh() {
		t.Fatalf("battery above capacity: %.2f", batteryWh)
	}
	if gridExport != 2000 {
		t.Fatalf("expected 2000 W grid export, got %.2f", gridExport)
	}
	if gridImport != 0 {
		t.Fatalf("unexpected grid import: %.2f", gridImport)
	}
}
