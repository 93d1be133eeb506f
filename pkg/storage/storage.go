// Package storage is the persistence sink: an append-only sqlite table of
// normalized location records with a most-recent-per-device read path.
package storage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/findmykit/trackagent"
)

// ErrNoRecord means no record has been persisted yet for the device.
var ErrNoRecord = pkgerrors.New("no location record found")

const schema = `
CREATE TABLE IF NOT EXISTS device_locations (
	id             TEXT PRIMARY KEY,
	device_id      TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	device_class   TEXT NOT NULL DEFAULT '',
	battery_level  REAL,
	battery_status TEXT NOT NULL DEFAULT '',
	latitude       REAL,
	longitude      REAL,
	accuracy       REAL,
	position_type  TEXT NOT NULL DEFAULT '',
	is_old         INTEGER NOT NULL DEFAULT 0,
	fix_time_ms    INTEGER,
	created_at_ns  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_device_locations_device_created
	ON device_locations(device_id, created_at_ns DESC);
`

// StoredRecord is a persisted record with its sink-assigned identity.
type StoredRecord struct {
	ID string `json:"_id"`
	trackagent.LocationRecord
}

// Store appends location records to sqlite. A single Store instance is the
// single writer; it assigns the authoritative creation timestamp under a
// mutex so timestamps never go backwards within a process.
type Store struct {
	db    *sql.DB
	clock func() time.Time

	mu     sync.Mutex
	lastTS time.Time
}

// Open opens (creating if needed) the sink database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: open sqlite db %s", path)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the tracker and HTTP reads.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "storage: apply schema")
	}
	log.Debug().Str("path", path).Msg("storage: sink opened")
	return &Store{db: db, clock: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists one record and returns its assigned id.
func (s *Store) Append(ctx context.Context, rec trackagent.LocationRecord) (string, error) {
	ids, err := s.AppendMany(ctx, []trackagent.LocationRecord{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AppendMany persists one iteration's batch in a single transaction:
// all-or-nothing, so a crash never leaves a partially applied iteration.
func (s *Store) AppendMany(ctx context.Context, records []trackagent.LocationRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: begin append tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO device_locations
		(id, device_id, name, model, device_class, battery_level, battery_status,
		 latitude, longitude, accuracy, position_type, is_old, fix_time_ms, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: prepare insert")
	}
	defer stmt.Close()

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		id := uuid.NewString()
		createdAt := s.nextTimestamp()

		var batteryLevel sql.NullFloat64
		if rec.BatteryLevel != nil {
			batteryLevel = sql.NullFloat64{Float64: *rec.BatteryLevel, Valid: true}
		}
		var lat, lon, accuracy sql.NullFloat64
		var fixTime sql.NullInt64
		positionType := ""
		isOld := 0
		if rec.Location != nil {
			lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
			accuracy = sql.NullFloat64{Float64: rec.Location.Accuracy, Valid: true}
			positionType = rec.Location.Type
			if rec.Location.IsOld {
				isOld = 1
			}
			if !rec.Location.FixTime.IsZero() {
				fixTime = sql.NullInt64{Int64: rec.Location.FixTime.UnixMilli(), Valid: true}
			}
		}

		if _, err := stmt.ExecContext(ctx, id, rec.DeviceID, rec.Name, rec.Model,
			rec.DeviceClass, batteryLevel, rec.BatteryStatus,
			lat, lon, accuracy, positionType, isOld, fixTime, createdAt.UnixNano()); err != nil {
			return nil, pkgerrors.Wrapf(err, "storage: insert record for device %s", rec.DeviceID)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: commit append tx")
	}
	return ids, nil
}

// MostRecentFor returns the latest persisted record for the device, or
// ErrNoRecord.
func (s *Store) MostRecentFor(ctx context.Context, deviceID string) (*StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, device_id, name, model, device_class,
		battery_level, battery_status, latitude, longitude, accuracy,
		position_type, is_old, fix_time_ms, created_at_ns
		FROM device_locations WHERE device_id = ?
		ORDER BY created_at_ns DESC, rowid DESC LIMIT 1`, deviceID)

	var (
		rec           StoredRecord
		batteryLevel  sql.NullFloat64
		lat, lon, acc sql.NullFloat64
		positionType  string
		isOld         int
		fixTimeMS     sql.NullInt64
		createdAtNS   int64
	)
	err := row.Scan(&rec.ID, &rec.DeviceID, &rec.Name, &rec.Model, &rec.DeviceClass,
		&batteryLevel, &rec.BatteryStatus, &lat, &lon, &acc,
		&positionType, &isOld, &fixTimeMS, &createdAtNS)
	if err == sql.ErrNoRows {
		return nil, pkgerrors.Wrapf(ErrNoRecord, "device %s", deviceID)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: query latest record for device %s", deviceID)
	}

	if batteryLevel.Valid {
		rec.BatteryLevel = &batteryLevel.Float64
	}
	if lat.Valid && lon.Valid {
		loc := &trackagent.RecordLocation{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Accuracy:  acc.Float64,
			Type:      positionType,
			IsOld:     isOld != 0,
		}
		if fixTimeMS.Valid {
			loc.FixTime = time.UnixMilli(fixTimeMS.Int64).UTC()
		}
		rec.Location = loc
	}
	rec.CreatedAt = time.Unix(0, createdAtNS).UTC()
	return &rec, nil
}

// nextTimestamp assigns the authoritative creation time, clamped so it
// never decreases across records written by this process instance.
func (s *Store) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	if now.Before(s.lastTS) {
		now = s.lastTS
	}
	s.lastTS = now
	return now
}
