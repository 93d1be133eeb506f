package config

import "time"

// Environment variable names understood by the agent.
const (
	EnvBackend        = "TRACKER_BACKEND"
	EnvSessionFile    = "SESSION_FILE"
	EnvDBPath         = "TRACKER_DB_PATH"
	EnvInterval       = "TRACKER_INTERVAL"
	EnvTargetDevice   = "TARGET_DEVICE"
	EnvAPIKey         = "API_KEY"
	EnvHost           = "HOST"
	EnvPort           = "PORT"
	EnvFindMyGateway  = "FINDMY_GATEWAY_URL"
	defaultBackend    = BackendICloud
	defaultSession    = "icloud_session.json"
	defaultFindMyFile = "account.json"
	defaultDBPath     = "device_locations.sqlite"
	defaultTarget     = "iPhone 16 Pro"
	defaultHost       = "0.0.0.0"
	defaultPort       = 5000
)

// Provider backend names.
const (
	BackendICloud = "icloud"
	BackendFindMy = "findmy"
)

const defaultInterval = 300 * time.Second

// Settings aggregates everything the agent reads from the environment.
// Constructed once at startup and passed down; nothing else reads os.Getenv.
type Settings struct {
	Backend       string
	SessionFile   string
	DBPath        string
	Interval      time.Duration
	TargetDevice  string
	APIKey        string
	Host          string
	Port          int
	FindMyGateway string
}

// FromEnv builds Settings with defaults applied. Values that are only
// required by specific backends or commands are validated at their point of
// use, not here.
func FromEnv() Settings {
	s := Settings{
		Backend:       String(EnvBackend, defaultBackend),
		DBPath:        String(EnvDBPath, defaultDBPath),
		Interval:      Duration(EnvInterval, defaultInterval),
		TargetDevice:  String(EnvTargetDevice, defaultTarget),
		APIKey:        String(EnvAPIKey, ""),
		Host:          String(EnvHost, defaultHost),
		Port:          Int(EnvPort, defaultPort),
		FindMyGateway: String(EnvFindMyGateway, ""),
	}
	if s.Backend == BackendFindMy {
		s.SessionFile = String(EnvSessionFile, defaultFindMyFile)
	} else {
		s.SessionFile = String(EnvSessionFile, defaultSession)
	}
	return s
}
