// Package providers selects a concrete provider backend from configuration.
package providers

import (
	"github.com/pkg/errors"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
	"github.com/findmykit/trackagent/internal/providers/findmy"
	"github.com/findmykit/trackagent/internal/providers/fmip"
	"github.com/findmykit/trackagent/internal/session"
)

// New builds the device provider named by cfg.Backend, bound to the saved
// credential.
func New(cfg config.Settings, cred *session.Credential) (trackagent.DeviceProvider, error) {
	switch cfg.Backend {
	case config.BackendICloud:
		return fmip.NewClient(cred)
	case config.BackendFindMy:
		if cfg.FindMyGateway == "" {
			return nil, errors.Errorf("config: %s is required for the findmy backend", config.EnvFindMyGateway)
		}
		return findmy.NewClient(cfg.FindMyGateway, cred)
	default:
		return nil, errors.Errorf("config: unknown tracker backend %q", cfg.Backend)
	}
}
