package fmip

// Vendor wire types for the Find-My-iPhone-mobile service. Field names here
// mirror the vendor JSON exactly and stay inside this package; everything
// crossing the package boundary is translated to the canonical shapes.

type clientResponse struct {
	StatusCode string         `json:"statusCode"`
	Content    []vendorDevice `json:"content"`
}

type vendorDevice struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	DeviceDisplayName string          `json:"deviceDisplayName"`
	DeviceClass       string          `json:"deviceClass"`
	RawDeviceModel    string          `json:"rawDeviceModel"`
	DeviceStatus      string          `json:"deviceStatus"`
	BatteryLevel      *float64        `json:"batteryLevel"`
	BatteryStatus     string          `json:"batteryStatus"`
	LocationEnabled   bool            `json:"locationEnabled"`
	LostModeCapable   bool            `json:"lostModeCapable"`
	Location          *vendorLocation `json:"location"`
}

type vendorLocation struct {
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	HorizontalAccuracy float64  `json:"horizontalAccuracy"`
	PositionType       string   `json:"positionType"`
	IsOld              bool     `json:"isOld"`
	// Milliseconds since the Unix epoch.
	TimeStamp int64 `json:"timeStamp"`
}

type playSoundRequest struct {
	Device  string `json:"device"`
	Subject string `json:"subject"`
}
