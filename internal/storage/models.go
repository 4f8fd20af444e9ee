package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading represents one persisted sample of generation, consumption, and
// storage values. Readings are append-only and immutable once written.
type Reading struct {
	Timestamp        time.Time
	SolarWatts       float64
	WindWatts        float64
	ConsumptionWatts float64
	BatteryWh        float64
	SunIntensity     float64
	WindSpeed        float64
	PanelTempC       float64
	PanelEfficiency  float64
	GridImportWatts  float64
	GridExportWatts  float64
	CreatedAt        time.Time
}

// Alert captures a fault-detector emission. Only Resolved is ever mutated.
type Alert struct {
	ID        int64
	Subsystem string
	Severity  string
	Message   string
	Timestamp time.Time
	Resolved  bool
	CreatedAt time.Time
}

// Transaction records an executed energy trade.
type Transaction struct {
	ID          int64
	Timestamp   time.Time
	Type        string
	AmountKWh   decimal.Decimal
	PricePerKWh decimal.Decimal
	TotalValue  decimal.Decimal
	Status      string
	CreatedAt   time.Time
}
