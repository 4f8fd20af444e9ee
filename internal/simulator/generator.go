package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/storage"
)

const (
	// peakSunIntensity is the midday solar irradiance ceiling in W/m².
	peakSunIntensity = 800.0
	// minGeneratingIntensity is the irradiance floor below which panels idle.
	minGeneratingIntensity = 50.0

	basePanelEfficiency = 0.20
	minPanelEfficiency  = 0.10
	maxPanelEfficiency  = 0.25

	windCutInSpeed  = 3.0
	windRatedSpeed  = 12.0
	windCutOutSpeed = 25.0

	minConsumptionWatts = 500.0
)

// Options parameterise the synthetic generator.
type Options struct {
	SolarCapacityW    float64
	WindCapacityW     float64
	BaseConsumptionW  float64
	BatteryCapacityWh float64
}

// Generator produces synthetic readings from a time-of-day curve plus
// bounded random perturbation. It holds no battery state of its own; the
// previous battery level is passed into every tick.
type Generator struct {
	opts   Options
	rng    *rand.Rand
	logger zerolog.Logger
}

// New constructs a Generator. The rng is injected so that seeded runs and
// tests are deterministic.
func New(opts Options, rng *rand.Rand, logger zerolog.Logger) *Generator {
	if opts.SolarCapacityW <= 0 {
		opts.SolarCapacityW = 5000
	}
	if opts.WindCapacityW <= 0 {
		opts.WindCapacityW = 3000
	}
	if opts.BaseConsumptionW <= 0 {
		opts.BaseConsumptionW = 2000
	}
	if opts.BatteryCapacityWh <= 0 {
		opts.BatteryCapacityWh = 10000
	}
	return &Generator{
		opts:   opts,
		rng:    rng,
		logger: logger.With().Str("component", "generator").Logger(),
	}
}

// BatteryCapacityWh exposes the configured battery capacity.
func (g *Generator) BatteryCapacityWh() float64 {
	return g.opts.BatteryCapacityWh
}

// Tick produces one reading for the given wall-clock instant. prevBatteryWh
// is the battery level from the previous reading; dt is the elapsed time
// since that reading, used to integrate the battery.
func (g *Generator) Tick(now time.Time, prevBatteryWh float64, dt time.Duration) storage.Reading {
	hour := float64(now.Hour()) + float64(now.Minute())/60

	sunIntensity, panelTemp, solarWatts, efficiency := g.solarSample(hour)
	windSpeed, windWatts := g.windSample(hour)
	consumptionWatts := g.consumptionSample(hour)

	batteryWh, gridImport, gridExport := g.integrateBattery(
		prevBatteryWh, solarWatts+windWatts, consumptionWatts, dt)

	return storage.Reading{
		Timestamp:        now.UTC(),
		SolarWatts:       solarWatts,
		WindWatts:        windWatts,
		ConsumptionWatts: consumptionWatts,
		BatteryWh:        batteryWh,
		SunIntensity:     sunIntensity,
		WindSpeed:        windSpeed,
		PanelTempC:       panelTemp,
		PanelEfficiency:  efficiency,
		GridImportWatts:  gridImport,
		GridExportWatts:  gridExport,
	}
}

// solarSample models irradiance as a sine over daylight hours, panel
// temperature as ambient plus irradiance heating, and efficiency as the
// base rating derated 0.4% per degree above 25°C.
func (g *Generator) solarSample(hour float64) (intensity, panelTemp, watts, efficiency float64) {
	factor := solarFactor(hour)

	if factor > 0 {
		intensity = peakSunIntensity*factor + g.rng.Float64()*250 - 100
		intensity = math.Max(0, intensity)
	}

	ambient := 25 + g.rng.Float64()*15 - 5
	panelTemp = ambient + intensity/30

	tempLoss := math.Max(0, (panelTemp-25)*0.004)
	efficiency = basePanelEfficiency - tempLoss + g.rng.Float64()*0.02 - 0.01
	efficiency = clamp(efficiency, minPanelEfficiency, maxPanelEfficiency)

	if intensity > minGeneratingIntensity {
		watts = (intensity / 1000) * g.opts.SolarCapacityW * efficiency
		watts = math.Max(0, watts+g.rng.Float64()*200-100)
	}
	return intensity, panelTemp, watts, efficiency
}

// windSample models turbine output with the standard cubic power curve
// between cut-in and rated speed and zero output past cut-out.
func (g *Generator) windSample(hour float64) (speed, watts float64) {
	factor := 0.3 + 0.4*math.Sin(2*math.Pi*hour/24) + g.rng.Float64()*0.4 - 0.2
	factor = clamp(factor, 0.1, 1.0)

	speed = 8*factor + g.rng.Float64()*6 - 2
	speed = math.Max(0, speed)

	if speed > windCutInSpeed && speed <= windCutOutSpeed {
		normalized := math.Min(speed/windRatedSpeed, 1)
		watts = g.opts.WindCapacityW * normalized * normalized * normalized
		watts = math.Max(0, watts+g.rng.Float64()*100-50)
	}
	return speed, watts
}

func (g *Generator) consumptionSample(hour float64) float64 {
	var factor float64
	if hour >= 7 && hour <= 22 {
		factor = 0.8 + 0.4*math.Sin(math.Pi*(hour-7)/15)
	} else {
		factor = 0.4 + g.rng.Float64()*0.2 - 0.1
	}

	consumption := g.opts.BaseConsumptionW*factor + g.rng.Float64()*500 - 200
	return math.Max(minConsumptionWatts, consumption)
}

// integrateBattery advances the battery level by the net power over dt and
// clamps it to [0, capacity]. Grid import covers deficits when the battery
// is nearly empty; surplus is exported once the battery is nearly full.
func (g *Generator) integrateBattery(prevWh, generationW, consumptionW float64, dt time.Duration) (batteryWh, gridImport, gridExport float64) {
	netW := generationW - consumptionW

	batteryWh = prevWh + netW*dt.Hours()
	batteryWh = clamp(batteryWh, 0, g.opts.BatteryCapacityWh)

	if netW < 0 && batteryWh <= g.opts.BatteryCapacityWh*0.01 {
		gridImport = -netW
	} else if netW > 0 && batteryWh >= g.opts.BatteryCapacityWh*0.95 {
		gridExport = netW
	}
	return batteryWh, gridImport, gridExport
}

// solarFactor is the daylight curve: zero outside 06:00-18:00, a half sine
// peaking at noon in between.
func solarFactor(hour float64) float64 {
	if hour < 6 || hour > 18 {
		return 0
	}
	return math.Max(0, math.Sin(math.Pi*(hour-6)/12))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
