package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"go.uber.org/zap"
)

var ErrMalformedRefreshToken = errors.New("malformed refresh token record")

// Credentials is the session-side view of Storage: the access token, the
// obfuscated refresh token and the cached user record.
// Unreadable values are reported as absent, never as errors.
type Credentials struct {
	store  Storage
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	ephemeral []string
}

func NewCredentials(store Storage, logger *zap.Logger) *Credentials {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Credentials{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterEphemeral adds session-scoped keys that Clear removes together
// with the credentials (e.g. a pending checkout draft).
func (c *Credentials) RegisterEphemeral(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ephemeral = append(c.ephemeral, keys...)
}

func (c *Credentials) AccessToken(ctx context.Context) string {
	return c.read(ctx, KeyAccessToken)
}

func (c *Credentials) RefreshToken(ctx context.Context) string {
	raw := c.read(ctx, KeyRefreshToken)
	if raw == "" {
		return ""
	}
	token, _, err := DecodeRefreshToken(raw)
	if err != nil {
		c.logger.Warn("discarding unreadable refresh token", zap.Error(err))
		return ""
	}
	return token
}

func (c *Credentials) User(ctx context.Context) *domain.User {
	raw := c.read(ctx, KeyUser)
	if raw == "" {
		return nil
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
		c.logger.Warn("discarding unreadable user record", zap.Error(err))
		return nil
	}
	return &u
}

// Session reads all three keys into a snapshot
func (c *Credentials) Session(ctx context.Context) domain.Session {
	return domain.Session{
		User:         c.User(ctx),
		AccessToken:  c.AccessToken(ctx),
		RefreshToken: c.RefreshToken(ctx),
	}
}

// SaveAuth stores a freshly issued credential set. An empty refresh token
// leaves the stored one untouched; a nil user likewise.
func (c *Credentials) SaveAuth(ctx context.Context, accessToken, refreshToken string, user *domain.User) error {
	if err := c.SetAccessToken(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := c.SetRefreshToken(ctx, refreshToken); err != nil {
			return err
		}
	}
	if user != nil {
		if err := c.SetUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

func (c *Credentials) SetAccessToken(ctx context.Context, token string) error {
	if err := c.store.Set(ctx, KeyAccessToken, token); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

func (c *Credentials) SetRefreshToken(ctx context.Context, token string) error {
	if err := c.store.Set(ctx, KeyRefreshToken, EncodeRefreshToken(token, c.now())); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (c *Credentials) SetUser(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user failed: %w", err)
	}
	if err := c.store.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Clear removes tokens, user and every registered ephemeral key.
func (c *Credentials) Clear(ctx context.Context) error {
	c.mu.Lock()
	keys := append([]string{KeyAccessToken, KeyRefreshToken, KeyUser}, c.ephemeral...)
	c.mu.Unlock()

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (c *Credentials) read(ctx context.Context, key string) string {
	v, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ""
	}
	if err != nil {
		c.logger.Warn("credential read failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return v
}

// EncodeRefreshToken produces base64("token|unix-millis").
// This only keeps the token from being readable at a glance; it is not encryption.
func EncodeRefreshToken(token string, at time.Time) string {
	raw := token + "|" + strconv.FormatInt(at.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeRefreshToken reverses EncodeRefreshToken.
func DecodeRefreshToken(encoded string) (string, time.Time, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrMalformedRefreshToken, err)
	}

	s := string(raw)
	sep := strings.LastIndexByte(s, '|')
	if sep <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: missing separator", ErrMalformedRefreshToken)
	}

	millis, err := strconv.ParseInt(s[sep+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: bad timestamp", ErrMalformedRefreshToken)
	}
	return s[:sep], time.UnixMilli(millis), nil
}
