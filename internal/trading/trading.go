package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridwatcher/internal/config"
	"gridwatcher/internal/storage"
)

// Price categories for the simulated time-of-day market.
const (
	CategoryPeak     = "peak"
	CategoryOffPeak  = "off_peak"
	CategoryStandard = "standard"
)

var (
	peakBuyMultiplier     = decimal.NewFromFloat(1.8)
	peakSellMultiplier    = decimal.NewFromFloat(1.5)
	offPeakBuyMultiplier  = decimal.NewFromFloat(0.7)
	offPeakSellMultiplier = decimal.NewFromFloat(0.6)
)

// ErrInvalidTrade rejects malformed trade requests.
var ErrInvalidTrade = errors.New("trading: invalid trade request")

// Prices is the market quote for one hour.
type Prices struct {
	BuyPerKWh  decimal.Decimal `json:"buy_per_kwh"`
	SellPerKWh decimal.Decimal `json:"sell_per_kwh"`
	Category   string          `json:"category"`
	Timestamp  time.Time       `json:"timestamp"`
}

// HourForecast is one entry of the 24 hour price forecast.
type HourForecast struct {
	Hour       int             `json:"hour"`
	Time       time.Time       `json:"time"`
	BuyPerKWh  decimal.Decimal `json:"buy_per_kwh"`
	SellPerKWh decimal.Decimal `json:"sell_per_kwh"`
	Category   string          `json:"category"`
}

// Recommendation is the current trading advice.
type Recommendation struct {
	Timestamp      time.Time       `json:"timestamp"`
	Action         string          `json:"action"`
	Reason         string          `json:"reason"`
	AmountKWh      decimal.Decimal `json:"amount_kwh"`
	PotentialValue decimal.Decimal `json:"potential_value"`
	Prices         Prices          `json:"prices"`
	NetWatts       float64         `json:"net_watts"`
	BatteryPct     float64         `json:"battery_pct"`
}

// ScheduleEntry is one hour of the planned charge/discharge schedule.
type ScheduleEntry struct {
	Time            time.Time       `json:"time"`
	Hour            int             `json:"hour"`
	Action          string          `json:"action"`
	AmountKWh       decimal.Decimal `json:"amount_kwh"`
	EstimatedValue  decimal.Decimal `json:"estimated_value"`
	Category        string          `json:"category"`
	BatteryPctAfter float64         `json:"battery_pct_after"`
}

// TradeRequest is the payload for an executed trade.
type TradeRequest struct {
	Type        string  `json:"type"`
	AmountKWh   float64 `json:"amount_kwh"`
	PricePerKWh float64 `json:"price_per_kwh"`
}

// Market prices energy by time of day and derives trade advice from the
// latest reading. Peak hours run 17:00-21:00, off-peak 22:00-06:00.
type Market struct {
	baseBuy  decimal.Decimal
	baseSell decimal.Decimal
	capacity float64
	store    storage.TransactionStore
	logger   zerolog.Logger
}

// NewMarket constructs a Market from configuration.
func NewMarket(cfg config.TradingConfig, batteryCapacityWh float64, store storage.TransactionStore, logger zerolog.Logger) *Market {
	return &Market{
		baseBuy:  decimal.NewFromFloat(cfg.BaseBuyPrice),
		baseSell: decimal.NewFromFloat(cfg.BaseSellPrice),
		capacity: batteryCapacityWh,
		store:    store,
		logger:   logger.With().Str("component", "trading").Logger(),
	}
}

// CurrentPrices quotes the market for the given instant.
func (m *Market) CurrentPrices(now time.Time) Prices {
	buy, sell, category := m.priceAt(now.Hour())
	return Prices{
		BuyPerKWh:  buy,
		SellPerKWh: sell,
		Category:   category,
		Timestamp:  now.UTC(),
	}
}

// Forecast quotes the market for each of the next hours.
func (m *Market) Forecast(now time.Time, hours int) []HourForecast {
	forecast := make([]HourForecast, 0, hours)
	for i := 0; i < hours; i++ {
		at := now.Add(time.Duration(i) * time.Hour)
		buy, sell, category := m.priceAt(at.Hour())
		forecast = append(forecast, HourForecast{
			Hour:       at.Hour(),
			Time:       at.UTC().Truncate(time.Hour),
			BuyPerKWh:  buy,
			SellPerKWh: sell,
			Category:   category,
		})
	}
	return forecast
}

// Recommend derives trading advice from the latest reading, following the
// surplus/deficit and opportunistic rules.
func (m *Market) Recommend(now time.Time, latest *storage.Reading) Recommendation {
	prices := m.CurrentPrices(now)
	rec := Recommendation{
		Timestamp: now.UTC(),
		Action:    "hold",
		Reason:    "balanced generation and consumption",
		Prices:    prices,
	}
	if latest == nil {
		rec.Reason = "no readings available"
		return rec
	}

	netW := latest.SolarWatts + latest.WindWatts - latest.ConsumptionWatts
	batteryPct := latest.BatteryWh / m.capacity * 100
	rec.NetWatts = netW
	rec.BatteryPct = batteryPct

	kwh := decimal.NewFromFloat(netW / 1000).Abs().Round(3)

	switch {
	case netW > 100 && batteryPct > 80:
		rec.Action = "sell"
		rec.Reason = fmt.Sprintf("surplus %.0fW with battery at %.1f%%", netW, batteryPct)
		rec.AmountKWh = kwh
		rec.PotentialValue = kwh.Mul(prices.SellPerKWh).Round(2)
	case netW < -100 && batteryPct < 30:
		rec.Action = "buy"
		rec.Reason = fmt.Sprintf("deficit %.0fW with battery at %.1f%%", netW, batteryPct)
		rec.AmountKWh = kwh
		rec.PotentialValue = kwh.Mul(prices.BuyPerKWh).Round(2)
	case prices.Category == CategoryOffPeak && batteryPct < 50:
		rec.Action = "buy_opportunistic"
		rec.Reason = "off-peak pricing with a half-empty battery"
		rec.AmountKWh = decimal.NewFromInt(2)
		rec.PotentialValue = rec.AmountKWh.Mul(prices.BuyPerKWh).Round(2)
	case prices.Category == CategoryPeak && batteryPct > 70:
		rec.Action = "sell_opportunistic"
		rec.Reason = "peak pricing with a well-charged battery"
		rec.AmountKWh = decimal.NewFromFloat(1.5)
		rec.PotentialValue = rec.AmountKWh.Mul(prices.SellPerKWh).Round(2)
	}

	return rec
}

// Execute validates and records a trade.
func (m *Market) Execute(ctx context.Context, now time.Time, req TradeRequest) (storage.Transaction, error) {
	if req.Type != "buy" && req.Type != "sell" {
		return storage.Transaction{}, fmt.Errorf("%w: type must be buy or sell", ErrInvalidTrade)
	}
	if req.AmountKWh <= 0 {
		return storage.Transaction{}, fmt.Errorf("%w: amount_kwh must be positive", ErrInvalidTrade)
	}
	if req.PricePerKWh <= 0 {
		return storage.Transaction{}, fmt.Errorf("%w: price_per_kwh must be positive", ErrInvalidTrade)
	}

	amount := decimal.NewFromFloat(req.AmountKWh).Round(3)
	price := decimal.NewFromFloat(req.PricePerKWh).Round(4)

	tx := storage.Transaction{
		Timestamp:   now.UTC(),
		Type:        req.Type,
		AmountKWh:   amount,
		PricePerKWh: price,
		TotalValue:  amount.Mul(price).Round(2),
		Status:      "completed",
	}

	if m.store == nil {
		return storage.Transaction{}, storage.ErrNotConfigured
	}
	rec, err := m.store.InsertTransaction(ctx, tx)
	if err != nil {
		return storage.Transaction{}, err
	}

	m.logger.Info().
		Str("type", rec.Type).
		Str("amount_kwh", rec.AmountKWh.String()).
		Str("total_value", rec.TotalValue.String()).
		Msg("trade executed")
	return rec, nil
}

// Schedule plans the next hours greedily: charge off-peak up to 80%, sell
// peak down to 30%, walking a simulated battery level forward.
func (m *Market) Schedule(now time.Time, hours int, startBatteryPct float64) []ScheduleEntry {
	capacityKWh := m.capacity / 1000
	batteryPct := startBatteryPct

	entries := make([]ScheduleEntry, 0, hours)
	for _, f := range m.Forecast(now, hours) {
		entry := ScheduleEntry{
			Time:     f.Time,
			Hour:     f.Hour,
			Action:   "hold",
			Category: f.Category,
		}

		switch {
		case f.Category == CategoryOffPeak && batteryPct < 80:
			amount := minFloat(2.0, (80-batteryPct)/100*capacityKWh)
			if amount > 0.1 {
				entry.Action = "buy"
				entry.AmountKWh = decimal.NewFromFloat(amount).Round(2)
				entry.EstimatedValue = entry.AmountKWh.Mul(f.BuyPerKWh).Round(2)
				batteryPct = minFloat(100, batteryPct+amount/capacityKWh*100)
			}
		case f.Category == CategoryPeak && batteryPct > 30:
			amount := minFloat(1.5, (batteryPct-30)/100*capacityKWh)
			if amount > 0.1 {
				entry.Action = "sell"
				entry.AmountKWh = decimal.NewFromFloat(amount).Round(2)
				entry.EstimatedValue = entry.AmountKWh.Mul(f.SellPerKWh).Round(2)
				batteryPct = maxFloat(0, batteryPct-amount/capacityKWh*100)
			}
		}

		entry.BatteryPctAfter = batteryPct
		entries = append(entries, entry)
	}
	return entries
}

func (m *Market) priceAt(hour int) (buy, sell decimal.Decimal, category string) {
	switch {
	case hour >= 17 && hour <= 21:
		return m.baseBuy.Mul(peakBuyMultiplier).Round(4),
			m.baseSell.Mul(peakSellMultiplier).Round(4),
			CategoryPeak
	case hour >= 22 || hour <= 6:
		return m.baseBuy.Mul(offPeakBuyMultiplier).Round(4),
			m.baseSell.Mul(offPeakSellMultiplier).Round(4),
			CategoryOffPeak
	default:
		return m.baseBuy.Round(4), m.baseSell.Round(4), CategoryStandard
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
