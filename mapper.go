package trackagent

// NewLocationRecord normalizes one device poll into a LocationRecord. Pure:
// no I/O, no clock. Any missing optional input simply yields the zero/nil
// field, and a nil location yields a record with Location nil. CreatedAt is
// left zero for the sink to assign.
func NewLocationRecord(dev Device, status DeviceStatus, loc *Location) LocationRecord {
	rec := LocationRecord{
		DeviceID:      dev.ID,
		Name:          dev.Name,
		Model:         dev.Model,
		DeviceClass:   dev.DeviceClass,
		BatteryLevel:  status.BatteryLevel,
		BatteryStatus: status.BatteryStatus,
	}
	if loc != nil {
		rec.Location = &RecordLocation{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Accuracy:  loc.HorizontalAccuracy,
			Type:      loc.PositionType,
			IsOld:     loc.IsOld,
			FixTime:   loc.FixTime,
		}
	}
	return rec
}
