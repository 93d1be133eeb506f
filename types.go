package trackagent

import (
	"context"
	"time"
)

// Device is the canonical device shape shared by every provider backend.
// Backends translate their vendor field names into this struct at the
// boundary; vendor naming never escapes the backend package.
type Device struct {
	ID              string
	Name            string
	Model           string
	DeviceClass     string
	RawModel        string
	DeviceStatus    string
	LocationEnabled bool
	LostModeCapable bool
}

// DeviceStatus carries live battery/state readings. Providers may omit any
// field, so everything here is optional.
type DeviceStatus struct {
	BatteryLevel  *float64
	BatteryStatus string
	DeviceStatus  string
}

// Location is a provider-reported position fix. A device without a fix is
// represented as a nil *Location by the provider, not as an error.
type Location struct {
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
	PositionType       string
	IsOld              bool
	FixTime            time.Time
}

// RecordLocation is the location portion of a persisted record.
type RecordLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Type      string    `json:"position_type,omitempty"`
	IsOld     bool      `json:"is_old"`
	FixTime   time.Time `json:"timestamp"`
}

// LocationRecord is one normalized poll result for one device. CreatedAt is
// zero until the sink assigns it at write time.
type LocationRecord struct {
	DeviceID      string          `json:"device_id"`
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	DeviceClass   string          `json:"device_class"`
	BatteryLevel  *float64        `json:"battery_level"`
	BatteryStatus string          `json:"battery_status,omitempty"`
	Location      *RecordLocation `json:"location"`
	CreatedAt     time.Time       `json:"timestamp"`
}

// DeviceProvider abstracts the remote account/device API. Implementations
// return ErrAuthExpired when the vendor demands re-authentication and wrap
// transport failures with ErrProviderUnavailable.
type DeviceProvider interface {
	// ListDevices fetches all devices registered to the account.
	ListDevices(ctx context.Context) ([]Device, error)
	// DeviceStatus returns live battery/state readings for one device.
	DeviceStatus(ctx context.Context, deviceID string) (DeviceStatus, error)
	// DeviceLocation returns the current fix, or (nil, nil) when the device
	// has no obtainable location.
	DeviceLocation(ctx context.Context, deviceID string) (*Location, error)
	// PlaySound asks the device to sound its alarm. Fire and forget: the only
	// acknowledgement is the vendor accepting the request.
	PlaySound(ctx context.Context, deviceID string) error
}

// SecondFactorMethod describes one way to receive a 2FA code.
type SecondFactorMethod struct {
	Kind        string // "trusted_device" or "sms"
	PhoneNumber string // set for sms methods
}

// LoginResult is either a completed session or a pending 2FA challenge.
type LoginResult struct {
	Requires2FA bool
	Methods     []SecondFactorMethod
}

// Authenticator drives the interactive login flow. Any front end (CLI
// prompt, HTTP form, headless script) can sit on top of it.
type Authenticator interface {
	BeginLogin(ctx context.Context, appleID, password string) (*LoginResult, error)
	RequestCode(ctx context.Context, methodIndex int) error
	SubmitChallenge(ctx context.Context, methodIndex int, code string) error
}
