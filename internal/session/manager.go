// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package session owns the signed-in identity: the Session record and the
current Credential. It is their only mutator; the persisted store holds a
serialized copy used to rehydrate on startup.

State machine:

	Uninitialized -> Initializing -> {Authenticated, Guest, Anonymous}

Authenticated and Guest are reachable from Anonymous; Logout always
returns to Anonymous. There is no expired state: an expired token is
noticed by the backend, and a 401 on a foreground call reaches
HandleUnauthorized.

Initialize trusts a persisted token+user pair immediately and validates
it in the background. A failed validation is logged and never signs the
user out.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/backend"
	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
)

// State is the session state machine position.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAnonymous
	StateGuest
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateGuest:
		return "guest"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// AuthBackend is the auth and OTP collaborator. *backend.Client
// satisfies it.
type AuthBackend interface {
	SignIn(ctx context.Context, email, password string) (*backend.AuthResult, error)
	SignUp(ctx context.Context, name, email, password string) (*backend.AuthResult, error)
	Refresh(ctx context.Context) (*backend.AuthResult, error)
	Validate(ctx context.Context) (*models.User, error)
	SignOut(ctx context.Context) error
	SendOTP(ctx context.Context, email, purpose string) error
	VerifyOTP(ctx context.Context, email, otp, purpose string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
}

// Change is sent to subscribers after every state transition.
type Change struct {
	State   State           `json:"-"`
	Name    string          `json:"state"`
	Session *models.Session `json:"session,omitempty"`
}

// Manager is the session manager.
type Manager struct {
	store     kvstore.Store
	auth      AuthBackend
	cfg       config.SessionConfig
	publisher events.Publisher
	now       func() time.Time

	mu          sync.RWMutex
	state       State
	session     *models.Session
	cred        *models.Credential
	initialized bool

	subMu       sync.Mutex
	subscribers map[int]chan Change
	nextSub     int

	resendMu sync.Mutex
	lastSent map[string]time.Time

	wg sync.WaitGroup
}

// Option customises a Manager.
type Option func(*Manager)

// WithPublisher publishes session.changed events on p.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an uninitialized manager.
func NewManager(store kvstore.Store, auth AuthBackend, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		auth:        auth,
		cfg:         cfg,
		publisher:   events.Discard{},
		now:         time.Now,
		state:       StateUninitialized,
		subscribers: make(map[int]chan Change),
		lastSent:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize rehydrates the session from the store. It always ends with
// Initialized() == true; the returned error only reports store failures.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInitializing
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
	}()

	log := logging.Ctx(ctx)

	var cred models.Credential
	hasToken, err := kvstore.GetJSON(ctx, m.store, kvstore.KeyToken, &cred)
	if err != nil {
		m.transition(ctx, StateAnonymous, nil, nil)
		return fmt.Errorf("read stored token: %w", err)
	}
	hasToken = hasToken && cred.AccessToken != ""

	user, userErr := m.loadUser(ctx)
	if userErr != nil {
		log.Warn().Err(userErr).Msg("Stored user is unreadable, clearing session")
		if err := m.store.Delete(ctx, kvstore.AuthKeys...); err != nil {
			log.Error().Err(err).Msg("Failed to clear auth keys")
		}
		m.transition(ctx, StateAnonymous, nil, nil)
		return nil
	}

	if hasToken && user != nil {
		m.transition(ctx, StateAuthenticated, models.SessionFromUser(user), &cred)
		log.Info().Str("subject_id", user.ID).Msg("Session restored")
		m.validateInBackground(ctx, cred.AccessToken)
		return nil
	}

	var guest models.Session
	ok, err := kvstore.GetJSON(ctx, m.store, kvstore.KeyGuest, &guest)
	if err != nil {
		m.transition(ctx, StateAnonymous, nil, nil)
		return fmt.Errorf("read stored guest: %w", err)
	}
	if ok && guest.SubjectID != "" {
		guest.Kind = models.SessionGuest
		guest.Authenticated = false
		m.transition(ctx, StateGuest, &guest, nil)
		log.Info().Str("subject_id", guest.SubjectID).Msg("Guest session restored")
		return nil
	}

	m.transition(ctx, StateAnonymous, nil, nil)
	return nil
}

// loadUser reads the stored user. Absent is (nil, nil); present but
// unparsable is an error.
func (m *Manager) loadUser(ctx context.Context) (*models.User, error) {
	raw, ok, err := m.store.Get(ctx, kvstore.KeyUser)
	if err != nil || !ok {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, errors.New("stored user has no id")
	}
	return &u, nil
}

// validateInBackground checks the restored token without blocking
// Initialize. Failure is only logged.
func (m *Manager) validateInBackground(ctx context.Context, token string) {
	bg := context.WithoutCancel(ctx)
	timeout := m.cfg.ValidateTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		vctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()

		user, err := m.auth.Validate(vctx)
		if err != nil {
			logging.Ctx(bg).Warn().Err(err).Msg("Background session validation failed, keeping session")
			return
		}
		if user == nil || user.ID == "" {
			return
		}

		m.mu.Lock()
		if m.cred == nil || m.cred.AccessToken != token {
			m.mu.Unlock()
			return
		}
		m.session = models.SessionFromUser(user)
		m.mu.Unlock()

		if err := kvstore.SetJSON(bg, m.store, kvstore.KeyUser, user); err != nil {
			logging.Ctx(bg).Warn().Err(err).Msg("Failed to persist validated user")
		}
		logging.Ctx(bg).Debug().Str("subject_id", user.ID).Msg("Session validated")
	}()
}

// Login signs in with email and password. Backend errors are returned
// unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	res, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, res)
}

// establish persists a successful auth result and switches to
// Authenticated.
func (m *Manager) establish(ctx context.Context, res *backend.AuthResult) (*models.Session, error) {
	if res == nil || res.AccessToken == "" {
		return nil, errors.New("sign-in response carried no access token")
	}
	if res.User == nil || res.User.ID == "" {
		return nil, errors.New("sign-in response carried no user")
	}

	cred := newCredential(res.AccessToken, m.now())
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyToken, cred); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyUser, res.User); err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}
	if err := m.store.Delete(ctx, kvstore.KeyGuest); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to clear guest record")
	}

	sess := models.SessionFromUser(res.User)
	m.transition(ctx, StateAuthenticated, sess, cred)
	logging.Ctx(ctx).Info().Str("subject_id", sess.SubjectID).Msg("Signed in")
	return cloneSession(sess), nil
}

// RefreshToken trades the current token for a new one. The stored token
// is replaced only after the new one is persisted; any failure leaves the
// session untouched.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.RLock()
	var old string
	if m.cred != nil {
		old = m.cred.AccessToken
	}
	m.mu.RUnlock()
	if old == "" {
		return ErrNotAuthenticated
	}

	log := logging.Ctx(ctx)

	res, err := m.auth.Refresh(ctx)
	if err == nil && (res == nil || res.AccessToken == "") {
		err = errors.New("refresh response carried no access token")
	}
	if err != nil {
		metrics.RecordTokenRefresh(err)
		log.Warn().Err(err).Msg("Token refresh failed, keeping current token")
		return err
	}

	cred := newCredential(res.AccessToken, m.now())

	m.mu.Lock()
	if m.cred == nil || m.cred.AccessToken != old {
		// Logged out or replaced while the call was in flight.
		m.mu.Unlock()
		log.Debug().Msg("Discarding refreshed token for a session that changed")
		return nil
	}
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyToken, cred); err != nil {
		m.mu.Unlock()
		metrics.RecordTokenRefresh(err)
		log.Warn().Err(err).Msg("Failed to persist refreshed token, keeping current token")
		return fmt.Errorf("persist token: %w", err)
	}
	m.cred = cred
	if res.User != nil && res.User.ID != "" {
		m.session = models.SessionFromUser(res.User)
		if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyUser, res.User); err != nil {
			log.Warn().Err(err).Msg("Failed to persist refreshed user")
		}
	}
	m.mu.Unlock()

	metrics.RecordTokenRefresh(nil)
	log.Debug().Time("expires_at", cred.ExpiresAt).Msg("Token refreshed")
	return nil
}

// QuickLogin drops any real credentials and starts a device-local guest
// session. Only allowed when session.allow_quick_login is set.
func (m *Manager) QuickLogin(ctx context.Context) (*models.Session, error) {
	if !m.cfg.AllowQuickLogin {
		return nil, ErrQuickLoginDisabled
	}

	if err := m.store.Delete(ctx, kvstore.KeyToken, kvstore.KeyUser, kvstore.KeyPendingSignup); err != nil {
		return nil, fmt.Errorf("clear credentials: %w", err)
	}
	m.transition(ctx, StateAnonymous, nil, nil)

	guest := models.NewGuestSession(m.now())
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyGuest, guest); err != nil {
		return nil, fmt.Errorf("persist guest: %w", err)
	}
	m.transition(ctx, StateGuest, guest, nil)
	logging.Ctx(ctx).Info().Str("subject_id", guest.SubjectID).Msg("Guest session started")
	return cloneSession(guest), nil
}

// Logout signs out server-side on a best-effort basis, then clears every
// persisted auth key and the in-memory session.
func (m *Manager) Logout(ctx context.Context) error {
	if m.Token() != "" {
		if err := m.auth.SignOut(ctx); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("Server sign-out failed, clearing local session anyway")
		}
	}

	err := m.store.Delete(ctx, kvstore.AuthKeys...)
	m.transition(ctx, StateAnonymous, nil, nil)
	if err != nil {
		return fmt.Errorf("clear auth keys: %w", err)
	}
	logging.Ctx(ctx).Info().Msg("Signed out")
	return nil
}

// HandleUnauthorized is the global policy for a rejected token: clear
// the credentials and return to Anonymous. Register it with
// backend.Client.SetUnauthorizedHandler.
func (m *Manager) HandleUnauthorized(ctx context.Context) {
	if m.State() != StateAuthenticated {
		return
	}
	logging.Ctx(ctx).Warn().Msg("Backend rejected the session token, signing out")
	if err := m.store.Delete(ctx, kvstore.KeyToken, kvstore.KeyUser); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to clear credentials")
	}
	m.transition(ctx, StateAnonymous, nil, nil)
}

// Current returns a copy of the session, or nil when anonymous.
func (m *Manager) Current() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.session)
}

// State returns the state machine position.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialized reports whether Initialize has finished.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Token returns the current access token, "" when there is none. It
// makes Manager a backend.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return ""
	}
	return m.cred.AccessToken
}

// Credential returns a copy of the current credential.
func (m *Manager) Credential() *models.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return nil
	}
	c := *m.cred
	return &c
}

// Subscribe returns a channel of state changes and a cancel function.
// Slow subscribers miss changes rather than block the manager.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 8)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// Close waits for background validation to finish.
func (m *Manager) Close() {
	m.wg.Wait()
}

func (m *Manager) transition(ctx context.Context, state State, sess *models.Session, cred *models.Credential) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	m.session = sess
	m.cred = cred
	m.mu.Unlock()

	if prev == state && state != StateAuthenticated {
		return
	}
	metrics.SessionTransitions.WithLabelValues(state.String()).Inc()

	change := Change{State: state, Name: state.String(), Session: cloneSession(sess)}

	m.subMu.Lock()
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
	m.subMu.Unlock()

	if err := m.publisher.Publish(ctx, events.TopicSessionChanged, change); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to publish session change")
	}
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
