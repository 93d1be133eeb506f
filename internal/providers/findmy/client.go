// Package findmy implements the alternative provider backend: a Find My
// gateway service (anisette-backed) that exposes the account's devices over
// a small REST API. Vendor field names differ from the fmip service
// (snake_case, second-resolution timestamps) and are translated to the
// canonical shapes at this boundary.
package findmy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/session"
)

const (
	refreshRateLimit = 10 * time.Second
	cacheTTL         = 30 * time.Second
	requestTimeout   = 30 * time.Second
)

type vendorDevice struct {
	Identifier       string          `json:"identifier"`
	DeviceName       string          `json:"device_name"`
	ModelDisplayName string          `json:"model_display_name"`
	DeviceClass      string          `json:"device_class"`
	DeviceModel      string          `json:"device_model"`
	BatteryLevel     *float64        `json:"battery_level"`
	BatteryStatus    string          `json:"battery_status"`
	IsOnline         *bool           `json:"is_online"`
	LocationEnabled  bool            `json:"location_enabled"`
	LostModeCapable  bool            `json:"lost_mode_capable"`
	Location         *vendorLocation `json:"location"`
}

type vendorLocation struct {
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	HorizontalAccuracy float64  `json:"horizontal_accuracy"`
	Source             string   `json:"source"`
	IsOld              bool     `json:"is_old"`
	// Seconds since the Unix epoch.
	Timestamp float64 `json:"timestamp"`
}

type devicesResponse struct {
	Devices []vendorDevice `json:"devices"`
}

// Client talks to a Find My gateway instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cred       *session.Credential
	limiter    *rate.Limiter
	clock      func() time.Time

	mu        sync.Mutex
	devices   map[string]vendorDevice
	fetchedAt time.Time
}

// Option customizes a Client; used by tests.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a gateway client. gatewayURL is the base URL of the
// deployed gateway, e.g. http://localhost:8080.
func NewClient(gatewayURL string, cred *session.Credential, opts ...Option) (*Client, error) {
	gatewayURL = strings.TrimRight(strings.TrimSpace(gatewayURL), "/")
	if gatewayURL == "" {
		return nil, errors.New("findmy: gateway url cannot be empty")
	}
	if cred == nil {
		return nil, errors.New("findmy: credential cannot be nil")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    gatewayURL,
		cred:       cred,
		limiter:    rate.NewLimiter(rate.Every(refreshRateLimit), 1),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListDevices refreshes from the gateway and returns the canonical list.
func (c *Client) ListDevices(ctx context.Context) ([]trackagent.Device, error) {
	vendors, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	devices := make([]trackagent.Device, 0, len(vendors))
	for _, vd := range vendors {
		devices = append(devices, toDevice(vd))
	}
	return devices, nil
}

// DeviceStatus returns battery/state readings for one device.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (trackagent.DeviceStatus, error) {
	vd, err := c.deviceByID(ctx, deviceID)
	if err != nil {
		return trackagent.DeviceStatus{}, err
	}
	status := trackagent.DeviceStatus{
		BatteryLevel:  vd.BatteryLevel,
		BatteryStatus: vd.BatteryStatus,
	}
	if vd.IsOnline != nil {
		if *vd.IsOnline {
			status.DeviceStatus = "online"
		} else {
			status.DeviceStatus = "offline"
		}
	}
	return status, nil
}

// DeviceLocation returns the current fix, or (nil, nil) when the gateway
// reports none.
func (c *Client) DeviceLocation(ctx context.Context, deviceID string) (*trackagent.Location, error) {
	vd, err := c.deviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return toLocation(vd.Location), nil
}

// PlaySound relays a play-sound request through the gateway.
func (c *Client) PlaySound(ctx context.Context, deviceID string) error {
	url := fmt.Sprintf("%s/devices/%s/play_sound", c.baseURL, deviceID)
	resp, err := c.do(ctx, http.MethodPost, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if err := checkStatus(resp.StatusCode, "play_sound"); err != nil {
		return err
	}
	log.Debug().Str("device_id", deviceID).Msg("findmy: play sound accepted")
	return nil
}

func (c *Client) refresh(ctx context.Context) (map[string]vendorDevice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "findmy: refresh limiter")
	}
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/devices")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode, "devices"); err != nil {
		return nil, err
	}

	var payload devicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(trackagent.ErrProviderUnavailable, "findmy: decode devices response: "+err.Error())
	}

	devices := make(map[string]vendorDevice, len(payload.Devices))
	for _, vd := range payload.Devices {
		if vd.Identifier == "" {
			continue
		}
		devices[vd.Identifier] = vd
	}

	c.mu.Lock()
	c.devices = devices
	c.fetchedAt = c.clock()
	c.mu.Unlock()
	return devices, nil
}

func (c *Client) deviceByID(ctx context.Context, deviceID string) (vendorDevice, error) {
	c.mu.Lock()
	vd, ok := c.devices[deviceID]
	fresh := c.clock().Sub(c.fetchedAt) < cacheTTL
	c.mu.Unlock()
	if ok && fresh {
		return vd, nil
	}

	devices, err := c.refresh(ctx)
	if err != nil {
		return vendorDevice{}, err
	}
	vd, ok = devices[deviceID]
	if !ok {
		return vendorDevice{}, errors.Wrapf(trackagent.ErrDeviceNotFound, "findmy: device %s", deviceID)
	}
	return vd, nil
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "findmy: build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.cred.SessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cred.SessionToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(trackagent.ErrProviderUnavailable, err.Error())
	}
	return resp, nil
}

func checkStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Wrapf(trackagent.ErrAuthExpired, "findmy: %s returned %d", op, status)
	default:
		return errors.Wrapf(trackagent.ErrProviderUnavailable, "findmy: %s returned %d", op, status)
	}
}

func toDevice(vd vendorDevice) trackagent.Device {
	status := ""
	if vd.IsOnline != nil {
		if *vd.IsOnline {
			status = "online"
		} else {
			status = "offline"
		}
	}
	return trackagent.Device{
		ID:              vd.Identifier,
		Name:            vd.DeviceName,
		Model:           vd.ModelDisplayName,
		DeviceClass:     vd.DeviceClass,
		RawModel:        vd.DeviceModel,
		DeviceStatus:    status,
		LocationEnabled: vd.LocationEnabled,
		LostModeCapable: vd.LostModeCapable,
	}
}

func toLocation(vl *vendorLocation) *trackagent.Location {
	if vl == nil || vl.Latitude == nil || vl.Longitude == nil {
		return nil
	}
	secs := int64(vl.Timestamp)
	nanos := int64((vl.Timestamp - float64(secs)) * float64(time.Second))
	return &trackagent.Location{
		Latitude:           *vl.Latitude,
		Longitude:          *vl.Longitude,
		HorizontalAccuracy: vl.HorizontalAccuracy,
		PositionType:       vl.Source,
		IsOld:              vl.IsOld,
		FixTime:            time.Unix(secs, nanos).UTC(),
	}
}
