package shop

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_storefront/internal/storage"
	"go.uber.org/zap"
)

// Drafts keeps the last checkout form under storage.KeyCheckoutDraft so a
// failed order can be retried without retyping the address. The key is
// session-scoped: register it with Credentials.RegisterEphemeral so logout
// removes it. A nil *Drafts does nothing.
type Drafts struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewDrafts(store storage.Storage, logger *zap.Logger) *Drafts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafts{store: store, logger: logger}
}

type checkoutDraft struct {
	ShippingAddress string `json:"shippingAddress"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	Note            string `json:"note,omitempty"`
}

// Save overwrites the draft. Failures are logged only.
func (d *Drafts) Save(ctx context.Context, c Checkout) {
	if d == nil {
		return
	}
	data, err := json.Marshal(checkoutDraft(c))
	if err != nil {
		d.logger.Warn("checkout draft encode failed", zap.Error(err))
		return
	}
	if err := d.store.Set(ctx, storage.KeyCheckoutDraft, string(data)); err != nil {
		d.logger.Warn("checkout draft save failed", zap.Error(err))
	}
}

// Load returns the saved draft. Missing or unreadable drafts report false.
func (d *Drafts) Load(ctx context.Context) (Checkout, bool) {
	if d == nil {
		return Checkout{}, false
	}
	raw, err := d.store.Get(ctx, storage.KeyCheckoutDraft)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("checkout draft read failed", zap.Error(err))
		}
		return Checkout{}, false
	}
	var draft checkoutDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		d.logger.Warn("discarding unreadable checkout draft", zap.Error(err))
		return Checkout{}, false
	}
	return Checkout(draft), true
}

func (d *Drafts) Discard(ctx context.Context) {
	if d == nil {
		return
	}
	if err := d.store.Delete(ctx, storage.KeyCheckoutDraft); err != nil {
		d.logger.Warn("checkout draft delete failed", zap.Error(err))
	}
}
