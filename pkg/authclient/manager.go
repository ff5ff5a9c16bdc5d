// Package authclient provides a client-side credential manager for services
// that call the GrantDesk API. It owns the access token, the CSRF token, and
// the refresh cookie, and transparently refreshes expiring credentials so
// callers never handle tokens directly.
//
// Refreshes are single-flight: when many goroutines notice an expired token
// at once, exactly one refresh request is sent and every waiter receives the
// shared outcome.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// ErrReauthenticate is returned when the server rejected the refresh
// credential itself. The stored credentials are cleared; the caller must
// call Login again.
var ErrReauthenticate = errors.New("authclient: refresh rejected, login required")

// ErrClosed is returned from operations on a closed Manager.
var ErrClosed = errors.New("authclient: manager is closed")

const (
	defaultRefreshLead  = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
	csrfHeaderName      = "X-CSRF-Token"
)

// Config configures a Manager.
type Config struct {
	// BaseURL is the API origin, without a trailing slash.
	BaseURL string

	// Email and Password authenticate the service account.
	Email    string
	Password string

	// RefreshLead is how long before access-token expiry a refresh is
	// started. Defaults to 30s.
	RefreshLead time.Duration

	// MaxRetries bounds retries of transient refresh failures (network
	// errors and 5xx responses). Auth rejections are never retried.
	MaxRetries int

	// RetryBackoff is the base delay between retries, doubled each attempt.
	RetryBackoff time.Duration

	// HTTPClient is the underlying client. A cookie jar is installed on a
	// copy so the refresh cookie round-trips automatically. Defaults to a
	// client with a 15s timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// refreshResult is delivered to every goroutine waiting on a refresh.
type refreshResult struct {
	token string
	err   error
}

// Manager holds credentials for one service account and keeps them fresh.
// Safe for concurrent use.
type Manager struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	mu          sync.Mutex
	accessToken string
	csrfToken   string
	expiresAt   time.Time
	refreshing  bool
	waiters     []chan refreshResult
	timer       *time.Timer
	closed      bool
}

// New creates a Manager. It does not authenticate; call Login first.
func New(cfg Config) (*Manager, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("authclient: BaseURL is required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("authclient: Email and Password are required")
	}
	if cfg.RefreshLead <= 0 {
		cfg.RefreshLead = defaultRefreshLead
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	// Copy so installing the jar does not mutate the caller's client.
	client := *base
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("authclient: creating cookie jar: %w", err)
	}
	client.Jar = jar

	return &Manager{
		cfg:  cfg,
		http: &client,
		log:  cfg.Logger,
	}, nil
}

// Login authenticates the service account and stores the resulting
// credentials. The refresh cookie lands in the cookie jar.
func (m *Manager) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    m.cfg.Email,
		"password": m.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("authclient: encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("authclient: building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: login request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authclient: login failed with status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("authclient: decoding login response: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.accessToken = payload.AccessToken
	m.csrfToken = resp.Header.Get(csrfHeaderName)
	m.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	m.scheduleRefreshLocked()
	return nil
}

// Token returns a currently valid access token, refreshing single-flight if
// the stored one is expired or inside the refresh lead window.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	if m.accessToken != "" && time.Until(m.expiresAt) > m.cfg.RefreshLead {
		token := m.accessToken
		m.mu.Unlock()
		return token, nil
	}
	ch := m.enqueueRefreshLocked()
	m.mu.Unlock()

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CSRFToken returns the current CSRF token. It rotates on every refresh, so
// callers should fetch it per request rather than caching it.
func (m *Manager) CSRFToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.csrfToken
}

// Do sends the request with the Bearer access token and CSRF token attached.
// On a 401 response, the credentials are refreshed once and the request is
// retried with the new token; the retry requires req.GetBody (set
// automatically for common body types by http.NewRequest).
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	m.decorate(req, token)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Token was stale or revoked server-side. Refresh once and retry, but
	// only if the body can be replayed; otherwise hand back the 401.
	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	drainAndClose(resp.Body)

	m.invalidateToken(token)
	token, err = m.Token(ctx)
	if err != nil {
		return nil, err
	}
	m.decorate(retry, token)
	return m.http.Do(retry)
}

// Logout destroys the server-side session and clears local credentials.
func (m *Manager) Logout(ctx context.Context) error {
	token, err := m.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("authclient: building logout request: %w", err)
	}
	m.decorate(req, token)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: logout request: %w", err)
	}
	drainAndClose(resp.Body)

	m.mu.Lock()
	m.accessToken = ""
	m.csrfToken = ""
	m.expiresAt = time.Time{}
	m.stopTimerLocked()
	m.mu.Unlock()
	return nil
}

// Close stops the background refresh timer. The Manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimerLocked()
}

func (m *Manager) decorate(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	if csrf := m.CSRFToken(); csrf != "" {
		req.Header.Set(csrfHeaderName, csrf)
	}
}

// invalidateToken discards the stored access token if it is still the one
// that just failed. A token replaced by a concurrent refresh is left alone.
func (m *Manager) invalidateToken(failed string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken == failed {
		m.accessToken = ""
		m.expiresAt = time.Time{}
	}
}

// enqueueRefreshLocked registers a waiter and starts the refresh goroutine
// if none is in flight. Callers must hold m.mu.
func (m *Manager) enqueueRefreshLocked() chan refreshResult {
	ch := make(chan refreshResult, 1)
	m.waiters = append(m.waiters, ch)
	if !m.refreshing {
		m.refreshing = true
		go m.refresh()
	}
	return ch
}

// refresh performs one refresh request and fans the outcome out to every
// waiter in arrival order.
func (m *Manager) refresh() {
	token, csrf, expiresAt, err := m.doRefresh()

	m.mu.Lock()
	if err == nil {
		m.accessToken = token
		m.csrfToken = csrf
		m.expiresAt = expiresAt
		m.scheduleRefreshLocked()
	} else if errors.Is(err, ErrReauthenticate) {
		m.accessToken = ""
		m.csrfToken = ""
		m.expiresAt = time.Time{}
		m.stopTimerLocked()
	}
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
}

// doRefresh calls POST /auth/refresh, retrying transient failures with
// exponential backoff. A 401 or 403 means the refresh credential itself is
// dead and is never retried.
func (m *Manager) doRefresh() (token, csrf string, expiresAt time.Time, err error) {
	backoff := m.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		req, reqErr := http.NewRequest(http.MethodPost, m.cfg.BaseURL+"/auth/refresh", nil)
		if reqErr != nil {
			return "", "", time.Time{}, fmt.Errorf("authclient: building refresh request: %w", reqErr)
		}

		resp, doErr := m.http.Do(req)
		if doErr != nil {
			lastErr = doErr
			m.log.Warn("token refresh failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Any("error", doErr),
			)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var payload struct {
				AccessToken string `json:"accessToken"`
				ExpiresIn   int64  `json:"expiresIn"`
			}
			decErr := json.NewDecoder(resp.Body).Decode(&payload)
			csrf := resp.Header.Get(csrfHeaderName)
			drainAndClose(resp.Body)
			if decErr != nil {
				return "", "", time.Time{}, fmt.Errorf("authclient: decoding refresh response: %w", decErr)
			}
			return payload.AccessToken, csrf, time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second), nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			drainAndClose(resp.Body)
			return "", "", time.Time{}, ErrReauthenticate

		default:
			drainAndClose(resp.Body)
			lastErr = fmt.Errorf("authclient: refresh failed with status %d", resp.StatusCode)
			m.log.Warn("token refresh failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("status", resp.StatusCode),
			)
		}
	}

	return "", "", time.Time{}, fmt.Errorf("authclient: refresh exhausted retries: %w", lastErr)
}

// scheduleRefreshLocked arms the pre-emptive refresh timer so the token is
// renewed before any caller observes it as expired. Callers must hold m.mu.
func (m *Manager) scheduleRefreshLocked() {
	if m.closed {
		return
	}
	m.stopTimerLocked()

	delay := time.Until(m.expiresAt) - m.cfg.RefreshLead
	if delay < 0 {
		delay = 0
	}
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		ch := m.enqueueRefreshLocked()
		m.mu.Unlock()

		if res := <-ch; res.err != nil {
			m.log.Warn("background token refresh failed", slog.Any("error", res.err))
		}
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("authclient: request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
