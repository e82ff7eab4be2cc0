package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/auth"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/events"
	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeAPI implements AuthAPI and RefreshAPI
type fakeAPI struct {
	mu          sync.Mutex
	loginRes    *auth.Result
	loginErr    error
	registerRes *auth.Result
	registerErr error
	logoutErr   error
	refreshFn   func(rt string) (*auth.Result, error)

	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32
	refreshRTs   []string
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (*auth.Result, error) {
	f.loginCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginRes, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, _ auth.Profile) (*auth.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerRes, f.registerErr
}

func (f *fakeAPI) Logout(context.Context) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeAPI) GoogleURL() string { return "https://api.example.com/auth/google" }

func (f *fakeAPI) Refresh(_ context.Context, rt string) (*auth.Result, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	f.refreshRTs = append(f.refreshRTs, rt)
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("refresh not configured")
	}
	return fn(rt)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
	ended     []events.Reason
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Failure(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, msg)
}

func (n *recordingNotifier) SessionEnded(reason events.Reason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, reason)
}

func (n *recordingNotifier) counts() (successes, failures, ended int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes), len(n.failures), len(n.ended)
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	m        *Manager
	api      *fakeAPI
	store    *storage.MemoryStorage
	creds    *storage.Credentials
	bus      *events.Bus
	notifier *recordingNotifier
	received []events.Event
	logs     *observer.ObservedLogs
}

// seed runs before the manager is built so it can restore from storage.
func newFixture(t *testing.T, seed func(ctx context.Context, creds *storage.Credentials)) *fixture {
	t.Helper()
	ctx := context.Background()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		api:      &fakeAPI{},
		store:    storage.NewMemoryStorage(),
		bus:      events.NewBus(),
		notifier: &recordingNotifier{},
		logs:     logs,
	}
	f.creds = storage.NewCredentials(f.store, logger)
	f.creds.RegisterEphemeral(storage.KeyCheckoutDraft)
	if seed != nil {
		seed(ctx, f.creds)
	}

	f.bus.Subscribe(func(_ context.Context, ev events.Event) {
		f.received = append(f.received, ev)
	})

	refresher := NewRefresher(f.api, f.creds, f.bus, logger, nil)
	f.m = NewManager(ctx, Options{
		API:         f.api,
		Credentials: f.creds,
		Refresher:   refresher,
		Bus:         f.bus,
		Notifier:    f.notifier,
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})
	t.Cleanup(f.m.Close)
	return f
}

func signedIn(token string) func(context.Context, *storage.Credentials) {
	return func(ctx context.Context, creds *storage.Credentials) {
		_ = creds.SaveAuth(ctx, token, "R1", &domain.User{ID: "u1", Name: "A", Role: "user"})
	}
}

func TestNewManager_Anonymous(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.False(t, f.m.IsAuthenticated())
	assert.Nil(t, f.m.User())
	assert.Equal(t, ModalNone, f.m.Modal())
}

func TestNewManager_RestoresFromStorage(t *testing.T) {
	f := newFixture(t, signedIn("T1"))

	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	require.NotNil(t, f.m.User())
	assert.Equal(t, "u1", f.m.User().ID)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.api.loginRes = &auth.Result{Token: "T1", RefreshToken: "R1", User: &domain.User{ID: "u1", Name: "A"}}
	f.m.OpenLogin()

	err := f.m.Login(context.Background(), "a@example.com", "secret")

	require.NoError(t, err)
	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.True(t, f.m.IsAuthenticated())
	assert.Equal(t, ModalNone, f.m.Modal())

	sess := f.m.Session(context.Background())
	assert.Equal(t, "T1", sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.Equal(t, "u1", sess.User.ID)

	assert.Equal(t, []events.Event{{Kind: events.AuthLogin}}, f.received)
	successes, failures, _ := f.notifier.counts()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, failures)
}

func TestLogin_FailureLeavesStateAndModal(t *testing.T) {
	f := newFixture(t, nil)
	f.api.loginErr = &httpclient.APIError{Status: 401, Message: "Invalid email or password"}
	f.m.OpenLogin()

	err := f.m.Login(context.Background(), "a@example.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", UserMessage(err))
	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Equal(t, ModalLogin, f.m.Modal())
	assert.Empty(t, f.creds.AccessToken(context.Background()))
	assert.Empty(t, f.received)

	_, failures, _ := f.notifier.counts()
	assert.Equal(t, 1, failures)
}

func TestLogin_ValidatesInput(t *testing.T) {
	f := newFixture(t, nil)

	err := f.m.Login(context.Background(), "  ", "secret")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.m.Login(context.Background(), "a@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, int32(0), f.api.loginCalls.Load())
}

func TestRegister_WithoutTokenOpensLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.api.registerRes = &auth.Result{}
	f.m.OpenRegister()

	err := f.m.Register(context.Background(), auth.Profile{Name: "A", Email: "a@example.com", Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Equal(t, ModalLogin, f.m.Modal())
	assert.Empty(t, f.received)
}

func TestRegister_WithTokenSignsIn(t *testing.T) {
	f := newFixture(t, nil)
	f.api.registerRes = &auth.Result{Token: "T1", User: &domain.User{ID: "u1", Name: "A"}}
	f.m.OpenRegister()

	err := f.m.Register(context.Background(), auth.Profile{Name: "A", Email: "a@example.com", Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, ModalNone, f.m.Modal())
	assert.Equal(t, "T1", f.creds.AccessToken(context.Background()))
}

func TestRegister_ValidatesInput(t *testing.T) {
	f := newFixture(t, nil)

	err := f.m.Register(context.Background(), auth.Profile{Email: "a@example.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandleOAuthCallback_Success(t *testing.T) {
	f := newFixture(t, nil)
	u, err := url.Parse("http://localhost:8085/auth/callback?token=T1&refreshToken=R1&next=%2Forders&user=" +
		url.QueryEscape(`{"_id":"u9","fullName":"Google User","email":"g@example.com"}`))
	require.NoError(t, err)

	clean, err := f.m.HandleOAuthCallback(context.Background(), u)

	require.NoError(t, err)
	assert.Equal(t, "next=%2Forders", clean.RawQuery)
	assert.Equal(t, "/auth/callback", clean.Path)

	sess := f.m.Session(context.Background())
	assert.Equal(t, "T1", sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.Equal(t, "u9", sess.User.ID)
	assert.Equal(t, "Google User", f.m.User().Name)
	assert.Equal(t, []events.Event{{Kind: events.AuthLogin}}, f.received)
}

func TestHandleOAuthCallback_ErrorParam(t *testing.T) {
	f := newFixture(t, nil)
	u, err := url.Parse("http://localhost:8085/auth/callback?error=access_denied")
	require.NoError(t, err)

	clean, err := f.m.HandleOAuthCallback(context.Background(), u)

	assert.ErrorIs(t, err, ErrOAuthFailed)
	assert.Empty(t, clean.RawQuery)
	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Empty(t, f.creds.AccessToken(context.Background()))
	_, failures, _ := f.notifier.counts()
	assert.Equal(t, 1, failures)
}

func TestHandleOAuthCallback_BadUser(t *testing.T) {
	f := newFixture(t, nil)
	u, err := url.Parse("http://localhost:8085/auth/callback?token=T1&user=%7Bnot-json")
	require.NoError(t, err)

	_, err = f.m.HandleOAuthCallback(context.Background(), u)

	assert.ErrorIs(t, err, ErrOAuthFailed)
	assert.Empty(t, f.creds.AccessToken(context.Background()))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, signedIn("T1"))
	require.NoError(t, f.store.Set(context.Background(), storage.KeyCart, `[]`))
	require.NoError(t, f.store.Set(context.Background(), storage.KeyCheckoutDraft, `{"shippingAddress":"1 Main St"}`))

	f.m.Logout(context.Background())

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.False(t, f.m.IsAuthenticated())
	assert.Equal(t, int32(1), f.api.logoutCalls.Load())

	sess := f.m.Session(context.Background())
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.RefreshToken)
	assert.Nil(t, sess.User)

	// the cart survives a logout, the checkout draft does not
	_, err := f.store.Get(context.Background(), storage.KeyCart)
	assert.NoError(t, err)
	_, err = f.store.Get(context.Background(), storage.KeyCheckoutDraft)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, []events.Event{{Kind: events.AuthLogout, Reason: events.ReasonUser}}, f.received)
	_, _, ended := f.notifier.counts()
	assert.Equal(t, 0, ended)
}

func TestLogout_BackendFailureStillClears(t *testing.T) {
	f := newFixture(t, signedIn("T1"))
	f.api.logoutErr = fmt.Errorf("%w: connection refused", httpclient.ErrNetwork)

	f.m.Logout(context.Background())

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Empty(t, f.creds.AccessToken(context.Background()))
}

func TestExternalLogoutResyncs(t *testing.T) {
	f := newFixture(t, signedIn("T1"))
	ctx := context.Background()

	require.NoError(t, f.creds.Clear(ctx))
	f.bus.Logout(ctx, events.ReasonRefreshRejected)

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Nil(t, f.m.User())
	assert.Equal(t, []events.Reason{events.ReasonRefreshRejected}, f.notifier.ended)
}

func TestExternalLoginResyncs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.creds.SaveAuth(ctx, "T1", "R1", &domain.User{ID: "u2", Name: "B"}))
	f.bus.Login(ctx)

	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, "u2", f.m.User().ID)
}

func TestCheckExpiry_BeyondGraceLogsOut(t *testing.T) {
	f := newFixture(t, signedIn(tokenExpiringAt(t, testNow.Add(-400*time.Second))))

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Empty(t, f.creds.AccessToken(context.Background()))
	assert.Empty(t, f.creds.RefreshToken(context.Background()))
	assert.Equal(t, []events.Reason{events.ReasonExpired}, f.notifier.ended)
	assert.Equal(t, int32(0), f.api.refreshCalls.Load())
}

func TestCheckExpiry_WithinGraceDoesNothing(t *testing.T) {
	token := tokenExpiringAt(t, testNow.Add(-100*time.Second))
	f := newFixture(t, signedIn(token))

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, token, f.creds.AccessToken(context.Background()))
	assert.Equal(t, int32(0), f.api.refreshCalls.Load())
	assert.Empty(t, f.received)
}

func TestCheckExpiry_FreshTokenDoesNothing(t *testing.T) {
	f := newFixture(t, signedIn(tokenExpiringAt(t, testNow.Add(time.Hour))))

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, int32(0), f.api.refreshCalls.Load())
	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
}

func TestCheckExpiry_LowWaterRefreshes(t *testing.T) {
	f := newFixture(t, signedIn(tokenExpiringAt(t, testNow.Add(time.Minute))))
	f.api.refreshFn = func(string) (*auth.Result, error) {
		return &auth.Result{Token: "T2", RefreshToken: "R2"}, nil
	}

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, int32(1), f.api.refreshCalls.Load())
	assert.Equal(t, []string{"R1"}, f.api.refreshRTs)
	assert.Equal(t, "T2", f.creds.AccessToken(context.Background()))
	assert.Equal(t, "R2", f.creds.RefreshToken(context.Background()))
	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, []events.Event{{Kind: events.SessionRefreshed}}, f.received)
}

func TestCheckExpiry_FailedRefreshIsTolerated(t *testing.T) {
	token := tokenExpiringAt(t, testNow.Add(time.Minute))
	f := newFixture(t, signedIn(token))
	f.api.refreshFn = func(string) (*auth.Result, error) {
		return nil, fmt.Errorf("%w: timeout", httpclient.ErrNetwork)
	}

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, token, f.creds.AccessToken(context.Background()))
	assert.Equal(t, "R1", f.creds.RefreshToken(context.Background()))
	successes, failures, ended := f.notifier.counts()
	assert.Zero(t, successes+failures+ended)
	assert.Equal(t, 1, f.logs.FilterMessage("passive token refresh failed").Len())
}

func TestCheckExpiry_RejectedRefreshLogsOut(t *testing.T) {
	f := newFixture(t, signedIn(tokenExpiringAt(t, testNow.Add(time.Minute))))
	f.api.refreshFn = func(string) (*auth.Result, error) {
		return nil, fmt.Errorf("%w: invalid", httpclient.ErrRefreshRejected)
	}

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Empty(t, f.creds.AccessToken(context.Background()))
	assert.Equal(t, []events.Reason{events.ReasonRefreshRejected}, f.notifier.ended)
}

func TestCheckExpiry_UndecodableTokenIsIgnored(t *testing.T) {
	f := newFixture(t, signedIn("opaque-token"))

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAuthenticated, f.m.State())
	assert.Equal(t, "opaque-token", f.creds.AccessToken(context.Background()))
	assert.Equal(t, 1, f.logs.FilterMessage("cannot read access token expiry").Len())
}

func TestCheckExpiry_NoTokenDoesNothing(t *testing.T) {
	f := newFixture(t, nil)

	f.m.CheckExpiry(context.Background())

	assert.Equal(t, domain.SessionAnonymous, f.m.State())
	assert.Equal(t, int32(0), f.api.refreshCalls.Load())
}

func TestStart_RunsPeriodicChecks(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{refreshFn: func(string) (*auth.Result, error) {
		return nil, fmt.Errorf("%w: offline", httpclient.ErrNetwork)
	}}
	store := storage.NewMemoryStorage()
	creds := storage.NewCredentials(store, nil)
	require.NoError(t, creds.SaveAuth(ctx, tokenExpiringAt(t, testNow.Add(time.Minute)), "R1", &domain.User{ID: "u1", Name: "A"}))
	bus := events.NewBus()

	m := NewManager(ctx, Options{
		Config:      Config{CheckInterval: 10 * time.Millisecond},
		API:         api,
		Credentials: creds,
		Refresher:   NewRefresher(api, creds, bus, nil, nil),
		Bus:         bus,
		Notifier:    &recordingNotifier{},
		Now:         func() time.Time { return testNow },
	})

	m.Start(ctx)
	assert.GreaterOrEqual(t, api.refreshCalls.Load(), int32(1), "startup check runs synchronously")

	require.Eventually(t, func() bool {
		return api.refreshCalls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	m.Close()
	calls := api.refreshCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, api.refreshCalls.Load(), "no checks after Close")
}

func TestGoogleLoginURL(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "https://api.example.com/auth/google", f.m.GoogleLoginURL())
}
