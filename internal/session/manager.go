// Package session owns the authenticated-session lifecycle: sign-in paths,
// passive expiry checks and the in-memory view of who is signed in.
package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/auth"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/events"
	"github.com/fjod/go_storefront/internal/metrics"
	"github.com/fjod/go_storefront/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultCheckInterval = 10 * time.Minute
	DefaultLowWaterMark  = 2 * time.Minute
	DefaultGrace         = 5 * time.Minute
)

// Login methods, used as a metrics label.
const (
	MethodPassword = "password"
	MethodRegister = "register"
	MethodOAuth    = "oauth"
)

// Query parameters the OAuth redirect carries back.
var callbackParams = []string{"token", "refreshToken", "user", "error"}

type Modal string

const (
	ModalNone     Modal = "none"
	ModalLogin    Modal = "login"
	ModalRegister Modal = "register"
)

type Config struct {
	CheckInterval time.Duration
	// LowWaterMark: a token with less lifetime left than this is refreshed.
	LowWaterMark time.Duration
	// Grace: a token expired for longer than this ends the session.
	Grace time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval: DefaultCheckInterval,
		LowWaterMark:  DefaultLowWaterMark,
		Grace:         DefaultGrace,
	}
}

// AuthAPI is the backend surface the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Register(ctx context.Context, p auth.Profile) (*auth.Result, error)
	Logout(ctx context.Context) error
	GoogleURL() string
}

type Options struct {
	Config      Config
	API         AuthAPI
	Credentials *storage.Credentials
	Refresher   *Refresher
	Bus         *events.Bus
	Notifier    Notifier
	Logger      *zap.Logger
	Metrics     metrics.Recorder
	Now         func() time.Time
}

type Manager struct {
	cfg       Config
	api       AuthAPI
	creds     *storage.Credentials
	refresher *Refresher
	bus       *events.Bus
	notifier  Notifier
	logger    *zap.Logger
	metrics   metrics.Recorder
	now       func() time.Time

	mu    sync.RWMutex
	state domain.SessionState
	user  *domain.User
	modal Modal

	unsubscribe func()
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewManager restores the session from storage and subscribes to the bus.
func NewManager(ctx context.Context, opts Options) *Manager {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.LowWaterMark <= 0 {
		cfg.LowWaterMark = def.LowWaterMark
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		cfg:       cfg,
		api:       opts.API,
		creds:     opts.Credentials,
		refresher: opts.Refresher,
		bus:       opts.Bus,
		notifier:  notifier,
		logger:    logger,
		metrics:   recorder,
		now:       now,
		state:     domain.SessionAnonymous,
		modal:     ModalNone,
		stopCh:    make(chan struct{}),
	}

	m.sync(ctx)
	m.unsubscribe = opts.Bus.Subscribe(m.handleEvent)
	return m
}

// Start runs one expiry check now and then one per CheckInterval until ctx
// is done or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.CheckExpiry(ctx)

	m.wg.Add(1)
	go m.checkLoop(ctx)
}

func (m *Manager) checkLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckExpiry(ctx)
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the check loop and detaches from the bus.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.unsubscribe()
	})
	m.wg.Wait()
}

func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// Session reads the current credentials from storage.
func (m *Manager) Session(ctx context.Context) domain.Session {
	return m.creds.Session(ctx)
}

func (m *Manager) GoogleLoginURL() string {
	return m.api.GoogleURL()
}

func (m *Manager) Modal() Modal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modal
}

func (m *Manager) OpenLogin()    { m.setModal(ModalLogin) }
func (m *Manager) OpenRegister() { m.setModal(ModalRegister) }
func (m *Manager) CloseModal()   { m.setModal(ModalNone) }

func (m *Manager) setModal(modal Modal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modal = modal
}

// Login signs in with email and password. On failure the session is left as
// it was, the modal stays open and the error is returned; UserMessage gives
// its display text.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return m.fail(MethodPassword, invalidInput("email is required"))
	}
	if password == "" {
		return m.fail(MethodPassword, invalidInput("password is required"))
	}

	m.setState(domain.SessionAuthenticating)
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.restoreState()
		return m.fail(MethodPassword, err)
	}
	return m.adopt(ctx, MethodPassword, res)
}

// Register creates an account. When the backend signs the user in right
// away the session is adopted like a login; otherwise the login modal opens.
func (m *Manager) Register(ctx context.Context, p auth.Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	switch {
	case p.Name == "":
		return m.fail(MethodRegister, invalidInput("name is required"))
	case p.Email == "":
		return m.fail(MethodRegister, invalidInput("email is required"))
	case p.Password == "":
		return m.fail(MethodRegister, invalidInput("password is required"))
	}

	m.setState(domain.SessionAuthenticating)
	res, err := m.api.Register(ctx, p)
	if err != nil {
		m.restoreState()
		return m.fail(MethodRegister, err)
	}

	if res.Token == "" {
		m.restoreState()
		m.setModal(ModalLogin)
		m.metrics.RecordLogin(MethodRegister, true)
		m.notifier.Success("Registration complete. Please sign in.")
		return nil
	}
	return m.adopt(ctx, MethodRegister, res)
}

// HandleOAuthCallback adopts the credentials carried by the identity
// provider redirect and returns the URL with them stripped.
// An error parameter is reported as ErrOAuthFailed and nothing is stored.
func (m *Manager) HandleOAuthCallback(ctx context.Context, u *url.URL) (*url.URL, error) {
	q := u.Query()
	clean := stripParams(u, callbackParams...)

	if e := q.Get("error"); e != "" {
		return clean, m.fail(MethodOAuth, fmt.Errorf("%w: %s", ErrOAuthFailed, e))
	}

	token := q.Get("token")
	if token == "" {
		return clean, m.fail(MethodOAuth, fmt.Errorf("%w: no token in callback", ErrOAuthFailed))
	}
	rawUser := q.Get("user")
	if rawUser == "" {
		return clean, m.fail(MethodOAuth, fmt.Errorf("%w: no user in callback", ErrOAuthFailed))
	}
	user, err := domain.NormalizeUser([]byte(rawUser))
	if err != nil {
		return clean, m.fail(MethodOAuth, fmt.Errorf("%w: %w", ErrOAuthFailed, err))
	}

	m.setState(domain.SessionAuthenticating)
	err = m.adopt(ctx, MethodOAuth, &auth.Result{
		Token:        token,
		RefreshToken: q.Get("refreshToken"),
		User:         user,
	})
	return clean, err
}

// Logout ends the session. The backend call is best effort; local
// credentials are always cleared.
func (m *Manager) Logout(ctx context.Context) {
	if m.creds.AccessToken(ctx) != "" {
		if err := m.api.Logout(ctx); err != nil {
			m.logger.Info("backend logout failed", zap.Error(err))
		}
	}

	if err := m.creds.Clear(ctx); err != nil {
		m.logger.Error("failed to clear credentials", zap.Error(err))
	}

	m.mu.Lock()
	m.user = nil
	m.state = domain.SessionAnonymous
	m.mu.Unlock()

	m.bus.Logout(ctx, events.ReasonUser)
	m.notifier.Success("You have been signed out.")
}

// CheckExpiry is the passive check. It never returns an error: a token that
// cannot be decoded is logged and left alone, a failed low-water refresh is
// retried on the next check, and only a token expired beyond the grace
// period ends the session.
func (m *Manager) CheckExpiry(ctx context.Context) {
	token := m.creds.AccessToken(ctx)
	if token == "" {
		return
	}

	exp, err := TokenExpiry(token)
	if err != nil {
		m.logger.Warn("cannot read access token expiry", zap.Error(err))
		return
	}

	remaining := exp.Sub(m.now())
	switch {
	case remaining < -m.cfg.Grace:
		m.logger.Warn("access token expired beyond grace, ending session",
			zap.Duration("remaining", remaining))
		m.refresher.forceLogout(ctx, events.ReasonExpired)

	case remaining >= 0 && remaining <= m.cfg.LowWaterMark:
		m.setState(domain.SessionRefreshPending)
		if _, err := m.refresher.refresh(ctx, SourcePassive); err != nil {
			m.logger.Warn("passive token refresh failed", zap.Error(err))
		}
		m.restoreState()
	}
}

func (m *Manager) adopt(ctx context.Context, method string, res *auth.Result) error {
	if err := m.creds.SaveAuth(ctx, res.Token, res.RefreshToken, res.User); err != nil {
		m.restoreState()
		return m.fail(method, err)
	}

	u := *res.User
	m.mu.Lock()
	m.user = &u
	m.state = domain.SessionAuthenticated
	m.modal = ModalNone
	m.mu.Unlock()

	m.metrics.RecordLogin(method, true)
	m.logger.Info("signed in", zap.String("method", method), zap.String("user_id", u.ID))
	m.bus.Login(ctx)
	m.notifier.Success(fmt.Sprintf("Welcome, %s!", u.Name))
	return nil
}

func (m *Manager) fail(method string, err error) error {
	m.metrics.RecordLogin(method, false)
	m.logger.Info("sign-in failed", zap.String("method", method), zap.Error(err))
	m.notifier.Failure(UserMessage(err))
	return err
}

func (m *Manager) setState(s domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// restoreState derives the resting state from the in-memory user.
func (m *Manager) restoreState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = restingState(m.user)
}

func restingState(u *domain.User) domain.SessionState {
	if u == nil {
		return domain.SessionAnonymous
	}
	return domain.SessionAuthenticated
}

func (m *Manager) handleEvent(ctx context.Context, ev events.Event) {
	wasAuthenticated := m.sync(ctx)

	if ev.Kind == events.AuthLogout && ev.Reason != events.ReasonUser && wasAuthenticated {
		m.notifier.SessionEnded(ev.Reason)
	}
}

// sync reloads the user from storage and reports whether a user was signed
// in before. A pending sign-in or refresh keeps its state.
func (m *Manager) sync(ctx context.Context) bool {
	user := m.creds.User(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	was := m.user != nil
	m.user = user
	if user == nil || m.state == domain.SessionAnonymous || m.state == domain.SessionAuthenticated {
		m.state = restingState(user)
	}
	return was
}

func stripParams(u *url.URL, names ...string) *url.URL {
	clean := *u
	q := clean.Query()
	for _, n := range names {
		q.Del(n)
	}
	clean.RawQuery = q.Encode()
	return &clean
}

