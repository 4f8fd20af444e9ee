package analytics

import (
	"math"
	"time"

	"gridwatcher/internal/storage"
)

// Prediction is a one-hour-ahead estimate of generation and consumption.
type Prediction struct {
	Horizon              string  `json:"horizon"`
	PredictedSolarW      float64 `json:"predicted_solar_w"`
	PredictedWindW       float64 `json:"predicted_wind_w"`
	PredictedConsumption float64 `json:"predicted_consumption_w"`
	PredictedNetW        float64 `json:"predicted_net_w"`
	Confidence           float64 `json:"confidence"`
}

// PredictNextHour estimates the next hour from the time-of-day curve,
// blended with the historical average for the same hour when history is
// available. Confidence grows with the number of matching historical
// readings.
func PredictNextHour(now time.Time, history []storage.Reading) Prediction {
	target := now.Add(time.Hour)
	hour := float64(target.Hour())

	// Curve-only baseline.
	solar := curveSolarW(hour)
	wind := curveWindW(hour)
	consumption := curveConsumptionW(hour)

	matched := 0
	var histSolar, histWind, histConsumption float64
	for _, r := range history {
		if r.Timestamp.Hour() == target.Hour() {
			histSolar += r.SolarWatts
			histWind += r.WindWatts
			histConsumption += r.ConsumptionWatts
			matched++
		}
	}

	confidence := 0.3
	if matched > 0 {
		n := float64(matched)
		// Equal-weight blend between curve and observed same-hour mean.
		solar = (solar + histSolar/n) / 2
		wind = (wind + histWind/n) / 2
		consumption = (consumption + histConsumption/n) / 2
		confidence = math.Min(0.95, 0.5+0.05*n)
	}

	return Prediction{
		Horizon:              "1h",
		PredictedSolarW:      solar,
		PredictedWindW:       wind,
		PredictedConsumption: consumption,
		PredictedNetW:        solar + wind - consumption,
		Confidence:           confidence,
	}
}

func curveSolarW(hour float64) float64 {
	if hour < 6 || hour > 18 {
		return 0
	}
	intensity := 600 * math.Sin(math.Pi*(hour-6)/12)
	return (intensity / 1000) * 5000 * 0.18
}

func curveWindW(hour float64) float64 {
	factor := 0.3 + 0.4*math.Sin(2*math.Pi*hour/24)
	factor = math.Max(0.1, math.Min(1.0, factor))
	speed := 8 * factor
	if speed <= 3 {
		return 0
	}
	normalized := math.Min(speed/12, 1)
	return 3000 * normalized * normalized * normalized
}

func curveConsumptionW(hour float64) float64 {
	if hour >= 7 && hour <= 22 {
		return 2000 * (0.8 + 0.4*math.Sin(math.Pi*(hour-7)/15))
	}
	return 2000 * 0.4
}
