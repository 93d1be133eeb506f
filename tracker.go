package trackagent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TargetAll selects every device in the account instead of a single one.
const TargetAll = "all"

// State is the tracker lifecycle state, readable concurrently with Run.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// RecordSink is the persistence side of the tracker. Implemented by
// pkg/storage; tests substitute fakes.
type RecordSink interface {
	AppendMany(ctx context.Context, records []LocationRecord) ([]string, error)
}

// TrackerConfig controls Tracker behavior.
type TrackerConfig struct {
	Provider DeviceProvider
	Sink     RecordSink
	// Interval between polls. Defaults to 5 minutes.
	Interval time.Duration
	// Target selects devices by exact display-name or model match.
	// TargetAll polls every device.
	Target string
	// SingleShot runs exactly one fetch-map-persist cycle and stops.
	SingleShot bool
}

// Tracker owns the poll-and-persist loop. Exactly one Run may be active per
// Tracker; the HTTP surface reads State and TargetDevice concurrently.
type Tracker struct {
	cfg   TrackerConfig
	state atomic.Int32

	mu     sync.RWMutex
	target *Device // most recently matched target, nil before first cycle
}

// NewTracker validates the configuration and applies defaults.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Provider == nil {
		return nil, errors.New("tracker: provider cannot be nil")
	}
	if cfg.Sink == nil {
		return nil, errors.New("tracker: sink cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if strings.TrimSpace(cfg.Target) == "" {
		cfg.Target = TargetAll
	}
	return &Tracker{cfg: cfg}, nil
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Target returns the configured device selector.
func (t *Tracker) Target() string {
	return t.cfg.Target
}

// TargetDevice returns the most recently matched target device, if any
// cycle has matched one yet.
func (t *Tracker) TargetDevice() (Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.target == nil {
		return Device{}, false
	}
	return *t.target, true
}

// Run polls until ctx is cancelled (or immediately after one cycle in
// single-shot mode). Iteration errors are logged and the loop continues;
// an expired session aborts Run since waiting cannot recover it.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return errors.New("tracker: already running")
	}
	defer t.state.Store(int32(StateStopped))

	log.Info().
		Str("target", t.cfg.Target).
		Dur("interval", t.cfg.Interval).
		Bool("single_shot", t.cfg.SingleShot).
		Msg("location tracking started")

	for {
		if err := t.runCycle(ctx); err != nil {
			if IsAuthExpired(err) {
				log.Error().Err(err).Msg("session expired, run `trackagent login` to re-authenticate")
				return err
			}
			log.Error().Err(err).Msg("tracking cycle failed")
		}
		if t.cfg.SingleShot {
			log.Info().Msg("single-shot cycle complete")
			return nil
		}

		timer := time.NewTimer(t.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.state.Store(int32(StateStopping))
			log.Info().Msg("location tracking stopped")
			return nil
		case <-timer.C:
		}
	}
}

// runCycle performs one fetch-map-persist iteration. Per-device failures
// skip the device; a failed iteration produces zero records.
func (t *Tracker) runCycle(ctx context.Context) error {
	devices, err := t.cfg.Provider.ListDevices(ctx)
	if err != nil {
		return errors.Wrap(err, "list devices")
	}

	matched := selectTargets(devices, t.cfg.Target)
	if len(matched) == 0 {
		return errors.Wrapf(ErrDeviceNotFound, "selector %q matched none of %d devices", t.cfg.Target, len(devices))
	}
	t.mu.Lock()
	first := matched[0]
	t.target = &first
	t.mu.Unlock()

	records := make([]LocationRecord, 0, len(matched))
	for _, dev := range matched {
		status, err := t.cfg.Provider.DeviceStatus(ctx, dev.ID)
		if err != nil {
			if IsAuthExpired(err) {
				return err
			}
			log.Warn().Err(err).Str("device", dev.Name).Msg("device status fetch failed, skipping device")
			continue
		}
		loc, err := t.cfg.Provider.DeviceLocation(ctx, dev.ID)
		if err != nil {
			if IsAuthExpired(err) {
				return err
			}
			log.Warn().Err(err).Str("device", dev.Name).Msg("device location fetch failed, skipping device")
			continue
		}

		rec := NewLocationRecord(dev, status, loc)
		records = append(records, rec)

		if rec.Location != nil {
			log.Info().
				Str("device", dev.Name).
				Float64("lat", rec.Location.Latitude).
				Float64("lon", rec.Location.Longitude).
				Float64("accuracy_m", rec.Location.Accuracy).
				Msg("location tracked")
		} else {
			log.Info().Str("device", dev.Name).Msg("location not available")
		}
	}

	if len(records) == 0 {
		return nil
	}
	// Write failures drop this iteration's records: no retry within the
	// interval, the next tick polls fresh data anyway.
	if _, err := t.cfg.Sink.AppendMany(ctx, records); err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("sink append failed, records dropped")
	}
	return nil
}

func selectTargets(devices []Device, selector string) []Device {
	if strings.EqualFold(selector, TargetAll) {
		return devices
	}
	matched := make([]Device, 0, 1)
	for _, dev := range devices {
		if dev.Model == selector || dev.Name == selector {
			matched = append(matched, dev)
		}
	}
	return matched
}
