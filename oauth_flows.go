package httr2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// tokenResponse is the wire shape of a token endpoint reply.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchangeToken POSTs a form to the client's token endpoint and parses the
// reply. Client credentials go in the form body alongside the grant
// parameters.
func exchangeToken(ctx context.Context, client *OAuthClient, form url.Values) (*Token, error) {
	form = cloneValues(form)
	form.Set("client_id", client.ID)
	secret, err := client.Secret()
	if err != nil {
		return nil, err
	}
	if secret != "" {
		form.Set("client_secret", secret)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, client.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "token request build failed", Cause: err, URL: client.TokenURL}
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hreq.Header.Set("Accept", "application/json")

	hresp, err := client.httpClient().Do(hreq)
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "token endpoint unreachable", Cause: err, Method: http.MethodPost, URL: client.TokenURL}
	}
	body, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodySize))
	_ = hresp.Body.Close()
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "token response read failed", Cause: err, Method: http.MethodPost, URL: client.TokenURL}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &RequestError{
			Type:       ErrorTypeAuth,
			Message:    "token response decode failed",
			Cause:      err,
			Method:     http.MethodPost,
			URL:        client.TokenURL,
			StatusCode: hresp.StatusCode,
		}
	}
	if tr.Error != "" || hresp.StatusCode >= 400 || tr.AccessToken == "" {
		msg := tr.Error
		if tr.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", tr.Error, tr.ErrorDescription)
		}
		if msg == "" {
			msg = "token exchange failed"
		}
		return nil, &RequestError{
			Type:       ErrorTypeAuth,
			Message:    msg,
			Cause:      ErrNoToken,
			Method:     http.MethodPost,
			URL:        client.TokenURL,
			StatusCode: hresp.StatusCode,
		}
	}

	token := &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}

func cloneValues(values url.Values) url.Values {
	dup := make(url.Values, len(values))
	for key, vals := range values {
		dup[key] = append([]string(nil), vals...)
	}
	return dup
}

// ClientCredentialsFlow exchanges the client's own credentials for a token.
// The usual choice for service-to-service calls.
type ClientCredentialsFlow struct {
	Scopes []string
}

func (f *ClientCredentialsFlow) Name() string { return "client_credentials" }

func (f *ClientCredentialsFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	form := cloneValues(params)
	form.Set("grant_type", "client_credentials")
	if len(f.Scopes) > 0 {
		form.Set("scope", strings.Join(f.Scopes, " "))
	}
	return exchangeToken(ctx, client, form)
}

// PasswordFlow exchanges a resource-owner username and password for a token.
type PasswordFlow struct {
	Username string
	Password string
	Scopes   []string
}

func (f *PasswordFlow) Name() string { return "password" }

func (f *PasswordFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	form := cloneValues(params)
	form.Set("grant_type", "password")
	form.Set("username", f.Username)
	form.Set("password", f.Password)
	if len(f.Scopes) > 0 {
		form.Set("scope", strings.Join(f.Scopes, " "))
	}
	return exchangeToken(ctx, client, form)
}

// RefreshTokenFlow exchanges a pre-obtained refresh token directly.
type RefreshTokenFlow struct {
	RefreshToken string
	Scopes       []string
}

func (f *RefreshTokenFlow) Name() string { return "refresh_token" }

func (f *RefreshTokenFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	form := cloneValues(params)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", f.RefreshToken)
	if len(f.Scopes) > 0 {
		form.Set("scope", strings.Join(f.Scopes, " "))
	}
	return exchangeToken(ctx, client, form)
}

// refreshExchange trades a refresh token for a fresh access token, keeping
// the old refresh token when the server does not rotate it.
func refreshExchange(ctx context.Context, client *OAuthClient, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	token, err := exchangeToken(ctx, client, form)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// JWTBearerFlow signs a JWT assertion with the given key and exchanges it
// per RFC 7523.
type JWTBearerFlow struct {
	// SigningMethod defaults to RS256.
	SigningMethod jwt.SigningMethod
	// Key is the signing key matching the method (e.g. *rsa.PrivateKey).
	Key interface{}
	// Claims seeds the assertion; iss/iat/exp are filled in when absent.
	Claims jwt.MapClaims
	// Lifetime bounds the assertion's exp claim. Defaults to 5 minutes.
	Lifetime time.Duration
}

func (f *JWTBearerFlow) Name() string { return "jwt_bearer" }

func (f *JWTBearerFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	method := f.SigningMethod
	if method == nil {
		method = jwt.SigningMethodRS256
	}
	lifetime := f.Lifetime
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}

	now := time.Now()
	claims := jwt.MapClaims{}
	for key, value := range f.Claims {
		claims[key] = value
	}
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = client.ID
	}
	if _, ok := claims["aud"]; !ok {
		claims["aud"] = client.TokenURL
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(lifetime).Unix()
	}

	assertion, err := jwt.NewWithClaims(method, claims).SignedString(f.Key)
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "jwt assertion signing failed", Cause: err, URL: client.TokenURL}
	}

	form := cloneValues(params)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)
	return exchangeToken(ctx, client, form)
}

// DeviceFlow runs the device authorization grant: obtain a device code, show
// the user code, poll the token endpoint until authorization completes.
type DeviceFlow struct {
	// DeviceAuthURL is the device authorization endpoint.
	DeviceAuthURL string
	Scopes        []string
	// Prompt presents the user code and verification URI. Defaults to a
	// no-op so headless tests can drive the flow.
	Prompt func(userCode, verificationURI string)
	// PollInterval overrides the server-suggested polling interval.
	PollInterval time.Duration
}

func (f *DeviceFlow) Name() string { return "device" }

type deviceAuthResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

func (f *DeviceFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	form := cloneValues(params)
	form.Set("client_id", client.ID)
	if len(f.Scopes) > 0 {
		form.Set("scope", strings.Join(f.Scopes, " "))
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization request build failed", Cause: err, URL: f.DeviceAuthURL}
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hresp, err := client.httpClient().Do(hreq)
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization endpoint unreachable", Cause: err, URL: f.DeviceAuthURL}
	}
	body, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodySize))
	_ = hresp.Body.Close()
	if err != nil {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization response read failed", Cause: err, URL: f.DeviceAuthURL}
	}

	var auth deviceAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil || auth.DeviceCode == "" {
		return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization failed", Cause: ErrNoToken, URL: f.DeviceAuthURL, StatusCode: hresp.StatusCode}
	}

	if f.Prompt != nil {
		f.Prompt(auth.UserCode, auth.VerificationURI)
	}

	interval := f.PollInterval
	if interval == 0 {
		interval = time.Duration(auth.Interval) * time.Second
	}
	if interval == 0 {
		interval = 5 * time.Second
	}

	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	if auth.ExpiresIn == 0 {
		deadline = time.Now().Add(15 * time.Minute)
	}

	for {
		tokenForm := url.Values{}
		tokenForm.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
		tokenForm.Set("device_code", auth.DeviceCode)
		token, err := exchangeToken(ctx, client, tokenForm)
		if err == nil {
			return token, nil
		}
		var reqErr *RequestError
		pending := false
		if errors.As(err, &reqErr) {
			pending = strings.Contains(reqErr.Message, "authorization_pending") || strings.Contains(reqErr.Message, "slow_down")
		}
		if !pending {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization timed out", Cause: ErrNoToken, URL: client.TokenURL}
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, &RequestError{Type: ErrorTypeAuth, Message: "device authorization cancelled", Cause: ctx.Err(), URL: client.TokenURL}
		}
	}
}

// AuthCodeFlow exchanges a pre-obtained authorization code for a token. The
// browser redirect dance that produces the code is out of scope; use
// AuthCodeURL to build the authorization URL for the user agent.
type AuthCodeFlow struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

func (f *AuthCodeFlow) Name() string { return "authorization_code" }

func (f *AuthCodeFlow) Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error) {
	form := cloneValues(params)
	form.Set("grant_type", "authorization_code")
	form.Set("code", f.Code)
	if f.RedirectURI != "" {
		form.Set("redirect_uri", f.RedirectURI)
	}
	if f.CodeVerifier != "" {
		form.Set("code_verifier", f.CodeVerifier)
	}
	return exchangeToken(ctx, client, form)
}

// AuthCodeURL renders the authorization endpoint URL the user agent must
// visit to produce a code for AuthCodeFlow.
func AuthCodeURL(client *OAuthClient, redirectURI, state string, scopes []string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", client.ID)
	if redirectURI != "" {
		query.Set("redirect_uri", redirectURI)
	}
	if state != "" {
		query.Set("state", state)
	}
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}
	sep := "?"
	if strings.Contains(client.AuthURL, "?") {
		sep = "&"
	}
	return client.AuthURL + sep + query.Encode()
}

// NewState generates an unguessable state parameter for the authorization
// code dance.
func NewState() string {
	return uuid.NewString()
}
