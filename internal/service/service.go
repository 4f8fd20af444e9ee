package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/alerting"
	"gridwatcher/internal/analytics"
	"gridwatcher/internal/config"
	"gridwatcher/internal/faults"
	"gridwatcher/internal/scheduler"
	"gridwatcher/internal/simulator"
	"gridwatcher/internal/storage"
	"gridwatcher/internal/telemetry"
)

// Service orchestrates the two periodic loops: synthetic generation and
// fault checking. Both run independently and concurrently with the API.
type Service struct {
	genSched   *scheduler.Scheduler
	faultSched *scheduler.Scheduler
	generator  *simulator.Generator
	detector   *faults.Detector
	readings   storage.ReadingStore
	alerts     storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	faultWindow time.Duration
	alertsOn    bool
	locker      storage.AdvisoryLocker
	lockKey     int64

	mu            sync.Mutex
	lastBatteryWh float64
	lastTick      time.Time
	primed        bool
}

// New constructs the monitoring service.
func New(cfg *config.Config, genSched, faultSched *scheduler.Scheduler, generator *simulator.Generator, detector *faults.Detector, readings storage.ReadingStore, alerts storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := readings.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		genSched:      genSched,
		faultSched:    faultSched,
		generator:     generator,
		detector:      detector,
		readings:      readings,
		alerts:        alerts,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		faultWindow:   cfg.Faults.Window,
		alertsOn:      cfg.Alerting.Enabled,
		locker:        locker,
		lockKey:       cfg.Generator.AdvisoryLockKey,
		lastBatteryWh: cfg.Generator.InitialBatteryWh,
	}
}

// Run starts both loops and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.genSched == nil || s.faultSched == nil {
		return fmt.Errorf("schedulers not configured")
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.genSched.Run(ctx, s.GenerateTick)
	}()
	go func() {
		errCh <- s.faultSched.Run(ctx, s.FaultTick)
	}()

	// Both loops only return on context cancellation; surface the first.
	err := <-errCh
	<-errCh
	return err
}

// GenerateTick produces and persists one synthetic reading. A storage
// failure is logged and skipped; the next tick proceeds independently.
func (s *Service) GenerateTick(ctx context.Context, tick time.Time) (err error) {
	defer func() { telemetry.RecordTick("generate", err) }()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	prevBattery, dt := s.batteryState(ctx, tick)

	reading := s.generator.Tick(tick, prevBattery, dt)

	if s.readings != nil {
		if insertErr := s.readings.InsertReading(ctx, reading); insertErr != nil {
			s.logger.Error().Err(insertErr).Time("tick", tick).Msg("failed to persist reading")
			return nil
		}
	}

	s.mu.Lock()
	s.lastBatteryWh = reading.BatteryWh
	s.lastTick = tick
	s.primed = true
	s.mu.Unlock()

	telemetry.ReadingsGeneratedTotal.Inc()
	telemetry.BatteryLevelWh.Set(reading.BatteryWh)

	s.logger.Info().Time("tick", tick).
		Float64("solar_w", reading.SolarWatts).
		Float64("wind_w", reading.WindWatts).
		Float64("consumption_w", reading.ConsumptionWatts).
		Float64("battery_wh", reading.BatteryWh).
		Msg("reading generated")
	return nil
}

// FaultTick runs one detector pass over the recent window. Errors are
// logged and never stop the loop.
func (s *Service) FaultTick(ctx context.Context, tick time.Time) (err error) {
	defer func() { telemetry.RecordTick("fault_check", err) }()

	if s.readings == nil || s.detector == nil {
		return nil
	}

	window, err := s.readings.ListReadingsBetween(ctx, tick.Add(-s.faultWindow), tick.Add(time.Second))
	if err != nil {
		return fmt.Errorf("load fault window: %w", err)
	}

	snapshot, compErr := analytics.Compute(window)
	if compErr != nil && !errors.Is(compErr, analytics.ErrInsufficientData) {
		return compErr
	}

	result := s.detector.Check(tick, snapshot, window)

	for _, alert := range result.Alerts {
		telemetry.AlertsEmittedTotal.WithLabelValues(alert.Subsystem, alert.Severity).Inc()

		rec := alert
		if s.alerts != nil {
			stored, insertErr := s.alerts.InsertAlert(ctx, alert)
			if insertErr != nil {
				s.logger.Error().Err(insertErr).Str("subsystem", alert.Subsystem).Msg("failed to persist alert")
			} else {
				rec = stored
			}
		}

		if s.alertsOn && s.notifier != nil {
			if notifyErr := s.notifier.Notify(ctx, rec); notifyErr != nil {
				s.logger.Error().Err(notifyErr).Str("subsystem", alert.Subsystem).Msg("failed to dispatch alert")
			}
		}
	}

	for _, sub := range result.Recovered {
		s.resolveOpenAlerts(ctx, sub.String())
	}

	return nil
}

// resolveOpenAlerts flips the resolved flag on open alerts for a recovered
// subsystem.
func (s *Service) resolveOpenAlerts(ctx context.Context, subsystem string) {
	if s.alerts == nil {
		return
	}

	open, err := s.alerts.ListOpenAlerts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list open alerts for resolution")
		return
	}
	for _, alert := range open {
		if alert.Subsystem != subsystem {
			continue
		}
		if err := s.alerts.ResolveAlert(ctx, alert.ID); err != nil {
			s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to resolve alert")
		}
	}
}

// batteryState returns the battery level and elapsed time to integrate
// over. On the first tick after startup it recovers state from the most
// recent stored reading rather than assuming the configured initial level.
func (s *Service) batteryState(ctx context.Context, tick time.Time) (float64, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed && s.readings != nil {
		if recent, err := s.readings.ListRecentReadings(ctx, 1); err == nil && len(recent) > 0 {
			s.lastBatteryWh = recent[0].BatteryWh
			s.lastTick = recent[0].Timestamp
		}
		s.primed = true
	}

	dt := time.Minute
	if !s.lastTick.IsZero() && tick.After(s.lastTick) {
		dt = tick.Sub(s.lastTick)
	}
	return s.lastBatteryWh, dt
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
