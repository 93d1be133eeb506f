package findmy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/session"
)

const gatewayPayload = `{
  "devices": [
    {
      "identifier": "dev-1",
      "device_name": "Jane's iPhone",
      "model_display_name": "iPhone 16 Pro",
      "device_class": "iPhone",
      "device_model": "iPhone17,1",
      "battery_level": 0.82,
      "battery_status": "NotCharging",
      "is_online": true,
      "location_enabled": true,
      "location": {
        "latitude": 37.7749,
        "longitude": -122.4194,
        "horizontal_accuracy": 5.0,
        "source": "crowdsourced",
        "is_old": false,
        "timestamp": 1767225600.5
      }
    },
    {
      "identifier": "dev-2",
      "device_name": "AirTag Keys",
      "model_display_name": "AirTag",
      "device_class": "Accessory",
      "is_online": false
    }
  ]
}`

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cred := &session.Credential{AppleID: "jane@example.com", SessionToken: "tok"}
	client, err := NewClient(srv.URL, cred)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestListDevicesTranslatesSnakeCaseFields(t *testing.T) {
	var gotAuth string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(gatewayPayload))
	}))

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("session token not forwarded: %q", gotAuth)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}

	byID := map[string]trackagent.Device{}
	for _, dev := range devices {
		byID[dev.ID] = dev
	}
	if byID["dev-1"].Model != "iPhone 16 Pro" || byID["dev-1"].Name != "Jane's iPhone" {
		t.Fatalf("vendor names not translated: %+v", byID["dev-1"])
	}
	if byID["dev-2"].DeviceStatus != "offline" {
		t.Fatalf("online flag not mapped: %+v", byID["dev-2"])
	}
}

func TestLocationSecondTimestamps(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gatewayPayload))
	}))

	ctx := context.Background()
	if _, err := client.ListDevices(ctx); err != nil {
		t.Fatal(err)
	}

	loc, err := client.DeviceLocation(ctx, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil {
		t.Fatal("expected a location for dev-1")
	}
	if loc.FixTime.Unix() != 1767225600 {
		t.Fatalf("second-resolution timestamp not converted: %v", loc.FixTime)
	}
	if loc.PositionType != "crowdsourced" {
		t.Fatalf("source not mapped to position type: %+v", loc)
	}

	loc2, err := client.DeviceLocation(ctx, "dev-2")
	if err != nil {
		t.Fatal(err)
	}
	if loc2 != nil {
		t.Fatalf("device without fix must yield nil location, got %+v", loc2)
	}
}

func TestGatewayAuthFailure(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListDevices(context.Background())
	if !trackagent.IsAuthExpired(err) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
}

func TestPlaySoundPath(t *testing.T) {
	var gotPath, gotMethod string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusAccepted)
	}))

	if err := client.PlaySound(context.Background(), "dev-2"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotPath != "/devices/dev-2/play_sound" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}
