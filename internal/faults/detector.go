package faults

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/analytics"
	"gridwatcher/internal/config"
	"gridwatcher/internal/storage"
)

const (
	severityWarning = "warning"
	severityFault   = "critical"
)

// condition is the outcome of one subsystem check: whether the watched
// metric crossed the soft and hard thresholds, and the alert text to use
// if a transition fires.
type condition struct {
	soft    bool
	hard    bool
	message string
}

// subsystemState tracks the per-subsystem machine between periodic checks.
type subsystemState struct {
	state           State
	consecutiveSoft int
}

// Detector runs threshold checks over the latest metrics and readings and
// drives a Nominal/Warning/Fault machine per subsystem. Exactly one alert
// is emitted on each transition into Warning and into Fault; holding a
// state emits nothing. A single clean check returns the subsystem to
// Nominal.
type Detector struct {
	cfg    config.FaultsConfig
	logger zerolog.Logger

	mu     sync.Mutex
	states map[Subsystem]*subsystemState
}

// NewDetector constructs a Detector with all subsystems Nominal.
func NewDetector(cfg config.FaultsConfig, logger zerolog.Logger) *Detector {
	states := make(map[Subsystem]*subsystemState, len(Subsystems()))
	for _, sub := range Subsystems() {
		states[sub] = &subsystemState{state: Nominal}
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With().Str("component", "fault_detector").Logger(),
		states: states,
	}
}

// Result is the outcome of one detector pass.
type Result struct {
	// Alerts to persist and dispatch, one per state transition.
	Alerts []storage.Alert
	// Recovered lists subsystems that returned to Nominal this check;
	// their open alerts should be resolved.
	Recovered []Subsystem
}

// Check evaluates every subsystem against the window and advances the
// state machines. snapshot may be the zero value when the window was empty;
// only the connectivity check is meaningful then.
func (d *Detector) Check(now time.Time, snapshot analytics.Snapshot, readings []storage.Reading) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res Result
	for _, sub := range Subsystems() {
		cond, applicable := d.evaluate(sub, now, snapshot, readings)
		if !applicable {
			continue
		}
		if alert, recovered := d.advance(sub, now, cond); alert != nil {
			res.Alerts = append(res.Alerts, *alert)
		} else if recovered {
			res.Recovered = append(res.Recovered, sub)
		}
	}
	return res
}

// StateOf reports the current machine state for a subsystem.
func (d *Detector) StateOf(sub Subsystem) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[sub].state
}

// advance applies one observed condition to a subsystem machine. It returns
// the alert to emit, if the transition calls for one, and whether the
// subsystem just recovered.
func (d *Detector) advance(sub Subsystem, now time.Time, cond condition) (*storage.Alert, bool) {
	st := d.states[sub]

	if !cond.soft {
		recovered := st.state != Nominal
		st.state = Nominal
		st.consecutiveSoft = 0
		if recovered {
			d.logger.Info().Str("subsystem", sub.String()).Msg("subsystem recovered")
		}
		return nil, recovered
	}

	st.consecutiveSoft++

	switch st.state {
	case Nominal:
		st.state = Warning
		st.consecutiveSoft = 1
		return d.emit(sub, now, severityWarning, cond.message), false
	case Warning:
		if cond.hard || st.consecutiveSoft >= d.cfg.ConsecutiveToFault {
			st.state = Fault
			return d.emit(sub, now, severityFault, cond.message), false
		}
	case Fault:
		// Holding a fault re-emits nothing.
	}
	return nil, false
}

func (d *Detector) emit(sub Subsystem, now time.Time, severity, message string) *storage.Alert {
	d.logger.Warn().
		Str("subsystem", sub.String()).
		Str("severity", severity).
		Msg(message)
	return &storage.Alert{
		Subsystem: sub.String(),
		Severity:  severity,
		Message:   message,
		Timestamp: now.UTC(),
	}
}

// evaluate runs the uniform per-subsystem check. The second return value is
// false when the check is not applicable to the current window (for
// example the solar check at night), which freezes the machine rather than
// producing false breaches.
func (d *Detector) evaluate(sub Subsystem, now time.Time, snapshot analytics.Snapshot, readings []storage.Reading) (condition, bool) {
	switch sub {
	case Solar:
		return d.solarCondition(snapshot, readings)
	case Wind:
		return d.windCondition(readings)
	case Battery:
		return d.batteryCondition(readings)
	case Connectivity:
		return d.connectivityCondition(now, readings)
	}
	return condition{}, false
}

func (d *Detector) solarCondition(snapshot analytics.Snapshot, readings []storage.Reading) (condition, bool) {
	// Efficiency is meaningless without sun; skip the check at night.
	if meanOf(readings, func(r storage.Reading) float64 { return r.SunIntensity }) < 100 {
		return condition{}, false
	}

	eff := snapshot.EfficiencyPct
	return condition{
		soft:    eff < d.cfg.EfficiencySoft,
		hard:    eff < d.cfg.EfficiencyHard,
		message: fmt.Sprintf("solar efficiency %.1f%% below threshold %.1f%%", eff*100, d.cfg.EfficiencySoft*100),
	}, true
}

func (d *Detector) windCondition(readings []storage.Reading) (condition, bool) {
	meanSpeed := meanOf(readings, func(r storage.Reading) float64 { return r.WindSpeed })
	if meanSpeed < 5 {
		return condition{}, false
	}

	actual := meanOf(readings, func(r storage.Reading) float64 { return r.WindWatts })
	expected := expectedWindWatts(meanSpeed)
	if expected <= 100 {
		return condition{}, false
	}

	ratio := actual / expected
	return condition{
		soft:    ratio < d.cfg.WindOutputSoft,
		hard:    ratio < d.cfg.WindOutputHard,
		message: fmt.Sprintf("wind turbine at %.0f%% of expected output (%.1f m/s mean wind)", ratio*100, meanSpeed),
	}, true
}

func (d *Detector) batteryCondition(readings []storage.Reading) (condition, bool) {
	if len(readings) == 0 {
		return condition{}, false
	}

	latest := readings[len(readings)-1]
	pct := latest.BatteryWh / batteryCapacityWh(readings) * 100
	return condition{
		soft:    pct < d.cfg.BatterySoftPct,
		hard:    pct < d.cfg.BatteryHardPct,
		message: fmt.Sprintf("battery level critical: %.1f%%", pct),
	}, true
}

func (d *Detector) connectivityCondition(now time.Time, readings []storage.Reading) (condition, bool) {
	if len(readings) == 0 {
		return condition{
			soft:    true,
			hard:    true,
			message: "no readings received in the check window",
		}, true
	}

	age := now.Sub(readings[len(readings)-1].Timestamp)
	return condition{
		soft:    age > d.cfg.StaleAfter,
		hard:    age > 2*d.cfg.StaleAfter,
		message: fmt.Sprintf("readings are stale: last update %s ago", age.Round(time.Second)),
	}, true
}

// expectedWindWatts mirrors the generator's cubic power curve for a 3 kW
// turbine.
func expectedWindWatts(speed float64) float64 {
	if speed <= 3 || speed > 25 {
		return 0
	}
	normalized := math.Min(speed/12, 1)
	return 3000 * normalized * normalized * normalized
}

// batteryCapacityWh infers capacity as the highest level the window has
// seen, floored at the nominal 10 kWh rating.
func batteryCapacityWh(readings []storage.Reading) float64 {
	capacity := 10000.0
	for _, r := range readings {
		if r.BatteryWh > capacity {
			capacity = r.BatteryWh
		}
	}
	return capacity
}

func meanOf(readings []storage.Reading, value func(storage.Reading) float64) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += value(r)
	}
	return sum / float64(len(readings))
}
