package trackagent

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeviceSnapshot is the export-file shape: one normalized entry per device,
// richer than a LocationRecord (capability flags included).
type DeviceSnapshot struct {
	DeviceID        string          `json:"device_id"`
	Name            string          `json:"name"`
	Model           string          `json:"model"`
	DeviceClass     string          `json:"device_class"`
	RawModel        string          `json:"raw_model,omitempty"`
	DeviceStatus    string          `json:"device_status,omitempty"`
	BatteryLevel    *float64        `json:"battery_level"`
	BatteryStatus   string          `json:"battery_status,omitempty"`
	LocationEnabled bool            `json:"location_enabled"`
	LostModeCapable bool            `json:"lost_mode_capable"`
	Location        *RecordLocation `json:"location,omitempty"`
}

// CollectSnapshots polls every device once and builds export snapshots.
// Per-device status/location failures degrade to missing fields rather than
// failing the whole export.
func CollectSnapshots(ctx context.Context, provider DeviceProvider) ([]DeviceSnapshot, error) {
	devices, err := provider.ListDevices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list devices")
	}

	snapshots := make([]DeviceSnapshot, 0, len(devices))
	for _, dev := range devices {
		snap := DeviceSnapshot{
			DeviceID:        dev.ID,
			Name:            dev.Name,
			Model:           dev.Model,
			DeviceClass:     dev.DeviceClass,
			RawModel:        dev.RawModel,
			DeviceStatus:    dev.DeviceStatus,
			LocationEnabled: dev.LocationEnabled,
			LostModeCapable: dev.LostModeCapable,
		}
		if status, err := provider.DeviceStatus(ctx, dev.ID); err == nil {
			snap.BatteryLevel = status.BatteryLevel
			snap.BatteryStatus = status.BatteryStatus
			if status.DeviceStatus != "" {
				snap.DeviceStatus = status.DeviceStatus
			}
		} else {
			if IsAuthExpired(err) {
				return nil, err
			}
			log.Warn().Err(err).Str("device", dev.Name).Msg("status unavailable for export")
		}
		if loc, err := provider.DeviceLocation(ctx, dev.ID); err == nil && loc != nil {
			snap.Location = &RecordLocation{
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
				Accuracy:  loc.HorizontalAccuracy,
				Type:      loc.PositionType,
				IsOld:     loc.IsOld,
				FixTime:   loc.FixTime,
			}
		} else if err != nil {
			if IsAuthExpired(err) {
				return nil, err
			}
			log.Warn().Err(err).Str("device", dev.Name).Msg("location unavailable for export")
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// ExportJSON writes snapshots as an indented JSON array, overwriting path.
func ExportJSON(path string, snapshots []DeviceSnapshot) error {
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal device snapshots")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write export file %s", path)
	}
	log.Info().Str("path", path).Int("devices", len(snapshots)).Msg("device data exported")
	return nil
}
