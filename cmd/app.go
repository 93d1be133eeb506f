package main

import (
	"github.com/pkg/errors"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
	"github.com/findmykit/trackagent/internal/providers"
	"github.com/findmykit/trackagent/internal/session"
)

// loadProvider restores the saved session and builds the configured
// provider backend. A missing session is fatal with an instruction to run
// the login flow first.
func loadProvider(cfg config.Settings) (trackagent.DeviceProvider, *session.Credential, error) {
	store := session.NewStore(cfg.SessionFile)
	cred, err := store.Load()
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil, errors.Errorf(
				"no saved session at %s: run `trackagent login` first", store.Path())
		}
		return nil, nil, err
	}
	provider, err := providers.New(cfg, cred)
	if err != nil {
		return nil, nil, err
	}
	return provider, cred, nil
}
