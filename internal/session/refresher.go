package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/auth"
	"github.com/fjod/go_storefront/internal/events"
	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/fjod/go_storefront/internal/metrics"
	"github.com/fjod/go_storefront/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Refresh sources, used as a metrics label.
const (
	SourceInterceptor = "interceptor"
	SourcePassive     = "passive"
)

// refreshTimeout bounds a shared refresh once it no longer follows the
// context of the caller that started it.
const refreshTimeout = 30 * time.Second

// RefreshAPI is the backend call behind a refresh.
type RefreshAPI interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.Result, error)
}

// Refresher is the only place access tokens get renewed. The 401 interceptor
// and the passive expiry check both go through it, and concurrent calls for
// the same refresh token share a single backend round trip.
type Refresher struct {
	api     RefreshAPI
	creds   *storage.Credentials
	bus     *events.Bus
	logger  *zap.Logger
	metrics metrics.Recorder

	group singleflight.Group
}

func NewRefresher(api RefreshAPI, creds *storage.Credentials, bus *events.Bus, logger *zap.Logger, recorder metrics.Recorder) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	return &Refresher{
		api:     api,
		creds:   creds,
		bus:     bus,
		logger:  logger,
		metrics: recorder,
	}
}

// Refresh implements httpclient.Refresher.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	return r.refresh(ctx, SourceInterceptor)
}

func (r *Refresher) refresh(ctx context.Context, source string) (string, error) {
	rt := r.creds.RefreshToken(ctx)

	// The round trip is shared, so it must not die with whichever caller
	// happened to start it. Each caller still stops waiting on its own ctx.
	ch := r.group.DoChan(rt, func() (interface{}, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return r.doRefresh(workCtx, rt, source)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("joined in-flight token refresh", zap.String("source", source))
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *Refresher) doRefresh(ctx context.Context, rt, source string) (string, error) {
	res, err := r.api.Refresh(ctx, rt)
	if err != nil {
		r.metrics.RecordRefresh(source, false)
		if errors.Is(err, httpclient.ErrRefreshRejected) {
			r.logger.Warn("refresh token rejected, ending session", zap.String("source", source))
			r.forceLogout(ctx, events.ReasonRefreshRejected)
		}
		return "", err
	}

	if err := r.creds.SaveAuth(ctx, res.Token, res.RefreshToken, res.User); err != nil {
		r.metrics.RecordRefresh(source, false)
		return "", fmt.Errorf("store refreshed credentials: %w", err)
	}

	r.metrics.RecordRefresh(source, true)
	r.logger.Info("access token refreshed", zap.String("source", source))
	r.bus.Publish(ctx, events.Event{Kind: events.SessionRefreshed})
	return res.Token, nil
}

// forceLogout clears every credential and broadcasts the logout. Storage
// failures are logged; the broadcast happens regardless.
func (r *Refresher) forceLogout(ctx context.Context, reason events.Reason) {
	if err := r.creds.Clear(ctx); err != nil {
		r.logger.Error("failed to clear credentials", zap.Error(err))
	}
	r.metrics.RecordForcedLogout(string(reason))
	r.bus.Logout(ctx, reason)
}
