package trackagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCollectSnapshotsDegradesPerDevice(t *testing.T) {
	provider := &stubProvider{
		devices: []Device{
			{ID: "a", Name: "Jane's iPhone", Model: "iPhone 16 Pro", LocationEnabled: true},
			{ID: "b", Name: "Office iPad", Model: "iPad Pro"},
		},
		locations: map[string]*Location{
			"a": {Latitude: 37.7749, Longitude: -122.4194, HorizontalAccuracy: 5},
		},
	}

	snapshots, err := CollectSnapshots(context.Background(), provider)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Location == nil {
		t.Fatal("device a should carry a location")
	}
	if snapshots[1].Location != nil {
		t.Fatal("device b has no fix and must export without location")
	}
	if snapshots[0].BatteryLevel == nil {
		t.Fatal("battery level lost in snapshot")
	}
}

func TestExportJSONOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")

	first := []DeviceSnapshot{{DeviceID: "a", Name: "One"}, {DeviceID: "b", Name: "Two"}}
	if err := ExportJSON(path, first); err != nil {
		t.Fatal(err)
	}
	second := []DeviceSnapshot{{DeviceID: "c", Name: "Three"}}
	if err := ExportJSON(path, second); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded []DeviceSnapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 || decoded[0].DeviceID != "c" {
		t.Fatalf("export must overwrite, got %+v", decoded)
	}
}
