package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridwatcher/internal/analytics"
	"gridwatcher/internal/storage"
)

// paramError marks a client-side parameter problem.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func badParam(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func parseHours(raw string, max int) (int, error) {
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, badParam("hours must be a positive integer")
	}
	if hours > max {
		return 0, badParam("hours exceeds maximum of %d", max)
	}
	return hours, nil
}

// seriesBuilder shapes a reading window into a chartable payload.
type seriesBuilder func(readings []storage.Reading) any

var seriesBuilders = map[string]seriesBuilder{
	"power_generation":    buildPowerGeneration,
	"battery_storage":     buildBatteryStorage,
	"sun_intensity_power": buildSunIntensityPower,
	"energy_balance":      buildEnergyBalance,
	"solar_vs_wind":       buildSolarVsWind,
	"current_stats":       buildCurrentStats,
	"daily_statistics":    buildDailyStatistics,
}

// handleDashboardSeries serves /api/dashboard/{series}. Unknown series
// names are client errors; an empty window is a successful empty payload.
func (s *Server) handleDashboardSeries(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/dashboard/")
	builder, ok := seriesBuilders[name]
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown series %q", name))
		return
	}

	window, err := s.loadWindow(r)
	if err != nil {
		s.respondWindowError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, builder(window))
}

type powerPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	SolarWatts       float64   `json:"solar_watts"`
	WindWatts        float64   `json:"wind_watts"`
	ConsumptionWatts float64   `json:"consumption_watts"`
	TotalWatts       float64   `json:"total_watts"`
}

func buildPowerGeneration(readings []storage.Reading) any {
	points := make([]powerPoint, 0, len(readings))
	for _, r := range readings {
		points = append(points, powerPoint{
			Timestamp:        r.Timestamp,
			SolarWatts:       r.SolarWatts,
			WindWatts:        r.WindWatts,
			ConsumptionWatts: r.ConsumptionWatts,
			TotalWatts:       r.SolarWatts + r.WindWatts,
		})
	}
	return points
}

type batteryPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	BatteryWh  float64   `json:"battery_wh"`
	BatteryPct float64   `json:"battery_pct"`
}

func buildBatteryStorage(readings []storage.Reading) any {
	capacity := 10000.0
	for _, r := range readings {
		if r.BatteryWh > capacity {
			capacity = r.BatteryWh
		}
	}

	points := make([]batteryPoint, 0, len(readings))
	for _, r := range readings {
		points = append(points, batteryPoint{
			Timestamp:  r.Timestamp,
			BatteryWh:  r.BatteryWh,
			BatteryPct: r.BatteryWh / capacity * 100,
		})
	}
	return points
}

type sunPowerPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	SunIntensity float64   `json:"sun_intensity"`
	SolarWatts   float64   `json:"solar_watts"`
}

func buildSunIntensityPower(readings []storage.Reading) any {
	points := make([]sunPowerPoint, 0, len(readings))
	for _, r := range readings {
		points = append(points, sunPowerPoint{
			Timestamp:    r.Timestamp,
			SunIntensity: r.SunIntensity,
			SolarWatts:   r.SolarWatts,
		})
	}
	return points
}

type balancePoint struct {
	Timestamp time.Time `json:"timestamp"`
	NetWatts  float64   `json:"net_watts"`
}

func buildEnergyBalance(readings []storage.Reading) any {
	points := make([]balancePoint, 0, len(readings))
	for _, r := range readings {
		points = append(points, balancePoint{
			Timestamp: r.Timestamp,
			NetWatts:  r.SolarWatts + r.WindWatts - r.ConsumptionWatts,
		})
	}
	return points
}

type sourceComparison struct {
	SolarTotalKWh float64 `json:"solar_total_kwh"`
	WindTotalKWh  float64 `json:"wind_total_kwh"`
	SolarSharePct float64 `json:"solar_share_pct"`
	WindSharePct  float64 `json:"wind_share_pct"`
}

func buildSolarVsWind(readings []storage.Reading) any {
	if len(readings) == 0 {
		return []sourceComparison{}
	}

	var solarWh, windWh float64
	for i := 1; i < len(readings); i++ {
		dt := readings[i].Timestamp.Sub(readings[i-1].Timestamp).Hours()
		solarWh += readings[i].SolarWatts * dt
		windWh += readings[i].WindWatts * dt
	}

	total := solarWh + windWh
	cmp := sourceComparison{
		SolarTotalKWh: solarWh / 1000,
		WindTotalKWh:  windWh / 1000,
	}
	if total > 0 {
		cmp.SolarSharePct = solarWh / total * 100
		cmp.WindSharePct = windWh / total * 100
	}
	return []sourceComparison{cmp}
}

type currentStats struct {
	Timestamp        time.Time          `json:"timestamp"`
	SolarWatts       float64            `json:"solar_watts"`
	WindWatts        float64            `json:"wind_watts"`
	ConsumptionWatts float64            `json:"consumption_watts"`
	BatteryWh        float64            `json:"battery_wh"`
	Averages         analytics.Averages `json:"averages"`
	Snapshot         analytics.Snapshot `json:"metrics"`
}

func buildCurrentStats(readings []storage.Reading) any {
	if len(readings) == 0 {
		return []currentStats{}
	}

	latest := readings[len(readings)-1]
	stats := currentStats{
		Timestamp:        latest.Timestamp,
		SolarWatts:       latest.SolarWatts,
		WindWatts:        latest.WindWatts,
		ConsumptionWatts: latest.ConsumptionWatts,
		BatteryWh:        latest.BatteryWh,
	}

	if avg, err := analytics.ComputeAverages(readings); err == nil {
		stats.Averages = avg
	}
	if snap, err := analytics.Compute(readings); err == nil {
		stats.Snapshot = snap
	}
	return []currentStats{stats}
}

type dailyStat struct {
	Date             string  `json:"date"`
	SolarTotalKWh    float64 `json:"solar_total_kwh"`
	WindTotalKWh     float64 `json:"wind_total_kwh"`
	ConsumptionKWh   float64 `json:"consumption_kwh"`
	BatteryMinWh     float64 `json:"battery_min_wh"`
	BatteryMaxWh     float64 `json:"battery_max_wh"`
	AvgSolarWatts    float64 `json:"avg_solar_watts"`
	AvgWindWatts     float64 `json:"avg_wind_watts"`
	AvgConsumptionW  float64 `json:"avg_consumption_watts"`
	ReadingsInWindow int     `json:"readings"`
}

func buildDailyStatistics(readings []storage.Reading) any {
	type acc struct {
		stat dailyStat
		n    int
	}

	byDay := make(map[string]*acc)
	for _, r := range readings {
		day := r.Timestamp.UTC().Format("2006-01-02")
		a, ok := byDay[day]
		if !ok {
			a = &acc{stat: dailyStat{Date: day, BatteryMinWh: r.BatteryWh, BatteryMaxWh: r.BatteryWh}}
			byDay[day] = a
		}

		a.stat.AvgSolarWatts += r.SolarWatts
		a.stat.AvgWindWatts += r.WindWatts
		a.stat.AvgConsumptionW += r.ConsumptionWatts
		if r.BatteryWh < a.stat.BatteryMinWh {
			a.stat.BatteryMinWh = r.BatteryWh
		}
		if r.BatteryWh > a.stat.BatteryMaxWh {
			a.stat.BatteryMaxWh = r.BatteryWh
		}
		a.n++
	}

	// Energy totals integrate the spacing between consecutive readings,
	// attributed to the day of the later reading.
	for i := 1; i < len(readings); i++ {
		day := readings[i].Timestamp.UTC().Format("2006-01-02")
		a, ok := byDay[day]
		if !ok {
			continue
		}
		dt := readings[i].Timestamp.Sub(readings[i-1].Timestamp).Hours()
		a.stat.SolarTotalKWh += readings[i].SolarWatts * dt / 1000
		a.stat.WindTotalKWh += readings[i].WindWatts * dt / 1000
		a.stat.ConsumptionKWh += readings[i].ConsumptionWatts * dt / 1000
	}

	days := make([]dailyStat, 0, len(byDay))
	for _, a := range byDay {
		n := float64(a.n)
		a.stat.AvgSolarWatts /= n
		a.stat.AvgWindWatts /= n
		a.stat.AvgConsumptionW /= n
		a.stat.ReadingsInWindow = a.n
		days = append(days, a.stat)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
