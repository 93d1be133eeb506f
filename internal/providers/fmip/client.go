// Package fmip implements the iCloud Find-My-iPhone-mobile backend of the
// device provider interface. One refresh call returns every device with its
// embedded status and location; the client caches the last refresh briefly
// so a ListDevices/DeviceStatus/DeviceLocation sequence within one poll
// iteration costs a single vendor round trip.
package fmip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/session"
)

const (
	defaultBaseURL = "https://fmipmobile.icloud.com"
	// The vendor throttles rapid re-polls; one refresh per 10s is well under
	// the observed limit.
	refreshRateLimit = 10 * time.Second
	// Cached refresh data is served to status/location reads within this
	// window so one poll iteration hits the vendor once.
	cacheTTL = 30 * time.Second

	requestTimeout = 30 * time.Second
)

// Client talks to the Find-My-iPhone-mobile REST service.
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

// Option customizes a Client; used by tests to point at a fake server.
type Option func(*Client)

// WithBaseURL overrides the vendor endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a provider client bound to a saved session.
func NewClient(cred *session.Credential, opts ...Option) (*Client, error) {
	if cred == nil {
		return nil, errors.New("fmip: credential cannot be nil")
	}
	if cred.AppleID == "" {
		return nil, errors.New("fmip: credential is missing the apple id")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		cred:       cred,
		limiter:    rate.NewLimiter(rate.Every(refreshRateLimit), 1),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListDevices refreshes from the vendor and returns the canonical device
// list.
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

// DeviceStatus returns live battery/state readings for one device.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (trackagent.DeviceStatus, error) {
	vd, err := c.deviceByID(ctx, deviceID)
	if err != nil {
		return trackagent.DeviceStatus{}, err
	}
	return trackagent.DeviceStatus{
		BatteryLevel:  vd.BatteryLevel,
		BatteryStatus: vd.BatteryStatus,
		DeviceStatus:  vd.DeviceStatus,
	}, nil
}

// DeviceLocation returns the current fix, or (nil, nil) when the vendor has
// none for the device.
func (c *Client) DeviceLocation(ctx context.Context, deviceID string) (*trackagent.Location, error) {
	vd, err := c.deviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return toLocation(vd.Location), nil
}

// PlaySound asks the vendor to sound the device alarm.
func (c *Client) PlaySound(ctx context.Context, deviceID string) error {
	body, err := json.Marshal(playSoundRequest{Device: deviceID, Subject: "TrackAgent Alarm"})
	if err != nil {
		return errors.Wrap(err, "fmip: encode play sound request")
	}
	url := fmt.Sprintf("%s/fmipservice/device/%s/playSound", c.baseURL, c.cred.AppleID)
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	log.Debug().Str("device_id", deviceID).Msg("fmip: play sound accepted")
	return nil
}

// refresh fetches the full device payload from the vendor.
func (c *Client) refresh(ctx context.Context) (map[string]vendorDevice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "fmip: refresh limiter")
	}

	url := fmt.Sprintf("%s/fmipservice/device/%s/initClient", c.baseURL, c.cred.AppleID)
	resp, err := c.do(ctx, http.MethodPost, url, []byte("{}"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload clientResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(trackagent.ErrProviderUnavailable, "fmip: decode initClient response: "+err.Error())
	}

	devices := make(map[string]vendorDevice, len(payload.Content))
	for _, vd := range payload.Content {
		if vd.ID == "" {
			continue
		}
		devices[vd.ID] = vd
	}

	c.mu.Lock()
	c.devices = devices
	c.fetchedAt = c.clock()
	c.mu.Unlock()
	return devices, nil
}

// deviceByID serves from the last refresh when fresh enough, otherwise
// refetches.
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
		return vendorDevice{}, errors.Wrapf(trackagent.ErrDeviceNotFound, "fmip: device %s", deviceID)
	}
	return vd, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "fmip: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Apple-Find-API-Ver", "3.0")
	req.Header.Set("X-Apple-Authscheme", "UserIDGuest")
	if c.cred.SessionToken != "" {
		req.Header.Set("X-Apple-Session-Token", c.cred.SessionToken)
	}
	if c.cred.Scnt != "" {
		req.Header.Set("scnt", c.cred.Scnt)
	}
	for name, value := range c.cred.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(trackagent.ErrProviderUnavailable, err.Error())
	}
	return resp, nil
}

// checkStatus maps vendor HTTP statuses onto the error taxonomy. 450 is the
// vendor's re-authentication demand.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == 450:
		io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(trackagent.ErrAuthExpired, "fmip: vendor returned %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(trackagent.ErrProviderUnavailable, "fmip: vendor returned %d", resp.StatusCode)
	}
}

func toDevice(vd vendorDevice) trackagent.Device {
	return trackagent.Device{
		ID:              vd.ID,
		Name:            vd.Name,
		Model:           vd.DeviceDisplayName,
		DeviceClass:     vd.DeviceClass,
		RawModel:        vd.RawDeviceModel,
		DeviceStatus:    vd.DeviceStatus,
		LocationEnabled: vd.LocationEnabled,
		LostModeCapable: vd.LostModeCapable,
	}
}

func toLocation(vl *vendorLocation) *trackagent.Location {
	// A missing location block or a block without coordinates both mean the
	// device has no obtainable fix right now. Normal, not an error.
	if vl == nil || vl.Latitude == nil || vl.Longitude == nil {
		return nil
	}
	return &trackagent.Location{
		Latitude:           *vl.Latitude,
		Longitude:          *vl.Longitude,
		HorizontalAccuracy: vl.HorizontalAccuracy,
		PositionType:       vl.PositionType,
		IsOld:              vl.IsOld,
		FixTime:            time.UnixMilli(vl.TimeStamp).UTC(),
	}
}
