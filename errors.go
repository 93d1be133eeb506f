package trackagent

import "github.com/pkg/errors"

// Error taxonomy shared across the agent. Callers check these with
// errors.Is; providers attach context with errors.Wrap so the sentinel
// survives the wrap chain.
var (
	// ErrAuthExpired means the saved session is no longer accepted by the
	// provider. Fatal: no amount of waiting fixes it, the operator must run
	// `trackagent login` again.
	ErrAuthExpired = errors.New("provider session expired, re-authentication required")

	// ErrProviderUnavailable tags transient transport/API failures. The
	// current iteration is skipped and the next tick retries.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDeviceNotFound means the configured target selector matched no
	// device in the account.
	ErrDeviceNotFound = errors.New("target device not found")
)

// IsAuthExpired reports whether err is (or wraps) an expired-session error.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
