package fmip

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/session"
)

const defaultAuthBaseURL = "https://idmsa.apple.com/appleauth"

// Auth drives the interactive login/2FA flow against the vendor identity
// service and persists the resulting session. The password is held in
// memory only for the duration of the flow and is never written to the
// session blob.
type Auth struct {
	httpClient *http.Client
	baseURL    string
	store      *session.Store

	appleID   string
	password  string
	scnt      string
	sessionID string
	methods   []trackagent.SecondFactorMethod
}

// AuthOption customizes an Auth flow; used by tests.
type AuthOption func(*Auth)

// WithAuthBaseURL overrides the identity service endpoint.
func WithAuthBaseURL(url string) AuthOption {
	return func(a *Auth) { a.baseURL = url }
}

// NewAuth builds an authenticator that saves completed sessions to store.
func NewAuth(store *session.Store, opts ...AuthOption) (*Auth, error) {
	if store == nil {
		return nil, errors.New("fmip: session store cannot be nil")
	}
	a := &Auth{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultAuthBaseURL,
		store:      store,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type signinRequest struct {
	AccountName string `json:"accountName"`
	Password    string `json:"password"`
	RememberMe  bool   `json:"rememberMe"`
}

type authMethodsResponse struct {
	TrustedDevices bool `json:"hsa2Account"`
	PhoneNumbers   []struct {
		NumberWithDialCode string `json:"numberWithDialCode"`
	} `json:"trustedPhoneNumbers"`
}

type securityCodeRequest struct {
	SecurityCode struct {
		Code string `json:"code"`
	} `json:"securityCode"`
}

// BeginLogin submits the primary credential. A 409 from the identity
// service means a second factor is required; the returned result then
// carries the selectable methods.
func (a *Auth) BeginLogin(ctx context.Context, appleID, password string) (*trackagent.LoginResult, error) {
	a.appleID = appleID
	a.password = password

	body, err := json.Marshal(signinRequest{AccountName: appleID, Password: password, RememberMe: true})
	if err != nil {
		return nil, errors.Wrap(err, "fmip: encode signin request")
	}
	resp, err := a.do(ctx, http.MethodPost, a.baseURL+"/auth/signin", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	a.captureSessionHeaders(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		if err := a.completeSession(); err != nil {
			return nil, err
		}
		return &trackagent.LoginResult{}, nil
	case http.StatusConflict:
		methods, err := a.fetchMethods(ctx)
		if err != nil {
			return nil, err
		}
		a.methods = methods
		return &trackagent.LoginResult{Requires2FA: true, Methods: methods}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, errors.New("fmip: invalid apple id or password")
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Wrapf(trackagent.ErrProviderUnavailable, "fmip: signin returned %d", resp.StatusCode)
	}
}

// RequestCode asks the vendor to deliver a code through the chosen method.
func (a *Auth) RequestCode(ctx context.Context, methodIndex int) error {
	method, err := a.method(methodIndex)
	if err != nil {
		return err
	}
	url := a.baseURL + "/auth/verify/trusteddevice"
	if method.Kind == "sms" {
		url = a.baseURL + "/auth/verify/phone"
	}
	resp, err := a.do(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return errors.Wrapf(trackagent.ErrProviderUnavailable, "fmip: request code returned %d", resp.StatusCode)
	}
	return nil
}

// SubmitChallenge verifies the delivered code, trusts the session, and
// persists the credential blob.
func (a *Auth) SubmitChallenge(ctx context.Context, methodIndex int, code string) error {
	method, err := a.method(methodIndex)
	if err != nil {
		return err
	}
	var req securityCodeRequest
	req.SecurityCode.Code = code
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "fmip: encode security code")
	}

	url := a.baseURL + "/auth/verify/trusteddevice/securitycode"
	if method.Kind == "sms" {
		url = a.baseURL + "/auth/verify/phone/securitycode"
	}
	resp, err := a.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	a.captureSessionHeaders(resp)
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.New("fmip: security code rejected")
	}

	// Trust the session so the saved blob survives without a new 2FA round.
	trustResp, err := a.do(ctx, http.MethodGet, a.baseURL+"/auth/2sv/trust", nil)
	if err != nil {
		return err
	}
	defer trustResp.Body.Close()
	a.captureSessionHeaders(trustResp)
	io.Copy(io.Discard, trustResp.Body)
	if trustResp.StatusCode != http.StatusOK && trustResp.StatusCode != http.StatusNoContent {
		log.Warn().Int("status", trustResp.StatusCode).Msg("fmip: trust session failed, 2FA may be required again later")
	}

	return a.completeSession()
}

func (a *Auth) method(index int) (trackagent.SecondFactorMethod, error) {
	if index < 0 || index >= len(a.methods) {
		return trackagent.SecondFactorMethod{}, errors.Errorf("fmip: no 2fa method at index %d", index)
	}
	return a.methods[index], nil
}

func (a *Auth) fetchMethods(ctx context.Context) ([]trackagent.SecondFactorMethod, error) {
	resp, err := a.do(ctx, http.MethodGet, a.baseURL+"/auth", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	a.captureSessionHeaders(resp)

	var payload authMethodsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "fmip: decode 2fa methods")
	}
	methods := []trackagent.SecondFactorMethod{{Kind: "trusted_device"}}
	for _, phone := range payload.PhoneNumbers {
		methods = append(methods, trackagent.SecondFactorMethod{
			Kind:        "sms",
			PhoneNumber: phone.NumberWithDialCode,
		})
	}
	return methods, nil
}

// completeSession assembles the credential from captured headers and saves
// it. The password is deliberately dropped here.
func (a *Auth) completeSession() error {
	cred := &session.Credential{
		AppleID:      a.appleID,
		SessionToken: a.sessionID,
		SessionID:    a.sessionID,
		Scnt:         a.scnt,
		SavedAt:      time.Now().UTC(),
	}
	if err := a.store.Save(cred); err != nil {
		return errors.Wrap(err, "fmip: save session")
	}
	a.password = ""
	log.Info().Str("path", a.store.Path()).Msg("session saved")
	return nil
}

func (a *Auth) captureSessionHeaders(resp *http.Response) {
	if v := resp.Header.Get("X-Apple-ID-Session-Id"); v != "" {
		a.sessionID = v
	}
	if v := resp.Header.Get("X-Apple-Session-Token"); v != "" {
		a.sessionID = v
	}
	if v := resp.Header.Get("scnt"); v != "" {
		a.scnt = v
	}
}

func (a *Auth) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "fmip: build auth request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.sessionID != "" {
		req.Header.Set("X-Apple-ID-Session-Id", a.sessionID)
	}
	if a.scnt != "" {
		req.Header.Set("scnt", a.scnt)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(trackagent.ErrProviderUnavailable, err.Error())
	}
	return resp, nil
}
