package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/findmykit/trackagent"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "records.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(deviceID string) trackagent.LocationRecord {
	battery := 0.82
	return trackagent.LocationRecord{
		DeviceID:      deviceID,
		Name:          "Jane's iPhone",
		Model:         "iPhone 16 Pro",
		DeviceClass:   "iPhone",
		BatteryLevel:  &battery,
		BatteryStatus: "NotCharging",
		Location: &trackagent.RecordLocation{
			Latitude:  37.7749,
			Longitude: -122.4194,
			Accuracy:  5.0,
			FixTime:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestAppendAssignsIdentityAndTimestamp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, sampleRecord("dev-1"))
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("append must assign a record id")
	}

	rec, err := store.MostRecentFor(ctx, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != id {
		t.Fatalf("id mismatch: %s vs %s", rec.ID, id)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("sink must assign CreatedAt")
	}
	if rec.Location == nil || rec.Location.Accuracy != 5.0 {
		t.Fatalf("location not persisted: %+v", rec.Location)
	}
	if rec.BatteryLevel == nil || *rec.BatteryLevel != 0.82 {
		t.Fatalf("battery level not persisted: %+v", rec.BatteryLevel)
	}
	if !rec.Location.FixTime.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("fix time mismatch: %v", rec.Location.FixTime)
	}
}

func TestAppendNilLocationAndBattery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := trackagent.LocationRecord{DeviceID: "dev-2", Name: "Office iPad"}
	if _, err := store.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.MostRecentFor(ctx, "dev-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Location != nil {
		t.Fatalf("expected nil location, got %+v", got.Location)
	}
	if got.BatteryLevel != nil {
		t.Fatalf("expected nil battery, got %v", *got.BatteryLevel)
	}
}

func TestMostRecentForReturnsLatestIteration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const iterations = 4
	devices := []string{"dev-a", "dev-b", "dev-c"}
	for i := 0; i < iterations; i++ {
		batch := make([]trackagent.LocationRecord, 0, len(devices))
		for _, dev := range devices {
			rec := sampleRecord(dev)
			rec.Name = fmt.Sprintf("iter-%d", i)
			batch = append(batch, rec)
		}
		if _, err := store.AppendMany(ctx, batch); err != nil {
			t.Fatal(err)
		}
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM device_locations`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != iterations*len(devices) {
		t.Fatalf("expected %d records, got %d", iterations*len(devices), count)
	}

	for _, dev := range devices {
		rec, err := store.MostRecentFor(ctx, dev)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Name != fmt.Sprintf("iter-%d", iterations-1) {
			t.Fatalf("device %s: expected record from last iteration, got %s", dev, rec.Name)
		}
	}
}

func TestCreatedAtMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Drive the sink with a clock that jumps backwards to prove the clamp.
	times := []time.Time{
		time.Date(2026, 8, 30, 12, 0, 2, 0, time.UTC),
		time.Date(2026, 8, 30, 12, 0, 1, 0, time.UTC),
		time.Date(2026, 8, 30, 12, 0, 3, 0, time.UTC),
	}
	idx := 0
	store.clock = func() time.Time {
		ts := times[idx%len(times)]
		idx++
		return ts
	}

	var created []time.Time
	for i := 0; i < len(times); i++ {
		if _, err := store.Append(ctx, sampleRecord("dev-m")); err != nil {
			t.Fatal(err)
		}
		rec, err := store.MostRecentFor(ctx, "dev-m")
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, rec.CreatedAt)
	}

	for i := 1; i < len(created); i++ {
		if created[i].Before(created[i-1]) {
			t.Fatalf("created_at went backwards: %v then %v", created[i-1], created[i])
		}
	}
}

func TestMostRecentForNoRecord(t *testing.T) {
	store := openTestStore(t)
	_, err := store.MostRecentFor(context.Background(), "ghost")
	if !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
}

func TestAppendManyEmptyBatch(t *testing.T) {
	store := openTestStore(t)
	ids, err := store.AppendMany(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}
