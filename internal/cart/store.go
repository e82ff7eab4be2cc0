// Package cart holds the in-memory shopping cart and mirrors it to durable storage.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/metrics"
	"github.com/fjod/go_storefront/internal/storage"
	"go.uber.org/zap"
)

const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpUpdate = "update"
	OpClear  = "clear"
	OpDeduct = "deduct"
)

// Store is the authoritative cart. Intents are applied one at a time under a
// mutex, and each change is persisted before the call returns, so storage is
// never more than the in-flight mutation behind memory.
//
// Operations never fail: out-of-range quantities are normalized, unknown
// variants are ignored, and persistence errors are logged.
type Store struct {
	mu      sync.Mutex
	lines   domain.CartState
	storage storage.Storage
	logger  *zap.Logger
	metrics metrics.Recorder
}

// NewStore creates the store and loads the persisted cart.
func NewStore(ctx context.Context, s storage.Storage, logger *zap.Logger, recorder metrics.Recorder) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	store := &Store{
		storage: s,
		logger:  logger,
		metrics: recorder,
	}
	store.LoadFromStorage(ctx)
	return store
}

// AddItem merges line into the cart: an existing line for the same variant
// has its quantity increased, otherwise line is appended.
// If the merged quantity is not positive the line is removed.
func (s *Store) AddItem(ctx context.Context, line domain.CartLine) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line.VariantID == "" {
		s.logger.Warn("ignoring cart line without variant id", zap.String("product_id", line.ProductID))
		return s.lines.Clone()
	}

	i := s.lines.Index(line.VariantID)
	switch {
	case i >= 0:
		quantity := s.lines[i].Quantity + line.Quantity
		if quantity <= 0 {
			s.removeAt(i)
		} else {
			s.lines[i].Quantity = quantity
		}
	case line.Quantity > 0:
		s.lines = append(s.lines, line)
	default:
		return s.lines.Clone()
	}

	s.commit(ctx, OpAdd)
	return s.lines.Clone()
}

// RemoveItem deletes the line for variantID. Unknown ids are a no-op.
func (s *Store) RemoveItem(ctx context.Context, variantID string) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.lines.Index(variantID)
	if i < 0 {
		return s.lines.Clone()
	}
	s.removeAt(i)

	s.commit(ctx, OpRemove)
	return s.lines.Clone()
}

// UpdateQuantity sets the quantity of a line; a quantity <= 0 removes it.
// Unknown ids are a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, variantID string, quantity int) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.lines.Index(variantID)
	if i < 0 {
		return s.lines.Clone()
	}
	if quantity <= 0 {
		s.removeAt(i)
	} else {
		s.lines[i].Quantity = quantity
	}

	s.commit(ctx, OpUpdate)
	return s.lines.Clone()
}

func (s *Store) ClearCart(ctx context.Context) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = domain.CartState{}
	s.commit(ctx, OpClear)
	return s.lines.Clone()
}

// Deduct subtracts the quantities in ordered from the matching lines and
// drops lines that reach zero. Lines added or increased after ordered was
// taken keep the difference. Variants no longer in the cart are skipped.
func (s *Store) Deduct(ctx context.Context, ordered domain.CartState) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, o := range ordered {
		i := s.lines.Index(o.VariantID)
		if i < 0 {
			continue
		}
		changed = true
		if quantity := s.lines[i].Quantity - o.Quantity; quantity > 0 {
			s.lines[i].Quantity = quantity
		} else {
			s.removeAt(i)
		}
	}
	if !changed {
		return s.lines.Clone()
	}

	s.commit(ctx, OpDeduct)
	return s.lines.Clone()
}

// LoadFromStorage replaces the in-memory cart with the persisted one.
// It does not write back. Missing, corrupt or non-array payloads load as an
// empty cart; invalid lines are dropped and duplicate variants merged.
func (s *Store) LoadFromStorage(ctx context.Context) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = s.read(ctx)
	return s.lines.Clone()
}

func (s *Store) Lines() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.Clone()
}

func (s *Store) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.LineCount()
}

func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.TotalQuantity()
}

func (s *Store) TotalValue() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.TotalValue()
}

func (s *Store) Has(variantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.Has(variantID)
}

func (s *Store) Find(variantID string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.Find(variantID)
}

func (s *Store) read(ctx context.Context) domain.CartState {
	raw, err := s.storage.Get(ctx, storage.KeyCart)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.CartState{}
	}
	if err != nil {
		s.logger.Warn("cart read failed, starting empty", zap.Error(err))
		return domain.CartState{}
	}

	var stored []domain.CartLine
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Warn("discarding corrupt cart payload", zap.Error(err))
		return domain.CartState{}
	}

	lines := make(domain.CartState, 0, len(stored))
	seen := make(map[string]int, len(stored))
	for _, l := range stored {
		if l.VariantID == "" || l.Quantity < 1 {
			continue
		}
		if j, ok := seen[l.VariantID]; ok {
			lines[j].Quantity += l.Quantity
			continue
		}
		seen[l.VariantID] = len(lines)
		lines = append(lines, l)
	}
	return lines
}

// commit persists the current lines; caller holds s.mu.
func (s *Store) commit(ctx context.Context, op string) {
	s.metrics.RecordCartMutation(op)

	data, err := json.Marshal(s.lines)
	if err != nil {
		s.logger.Error("marshal cart failed", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, storage.KeyCart, string(data)); err != nil {
		s.logger.Warn("cart persist failed", zap.String("op", op), zap.Error(err))
	}
}

func (s *Store) removeAt(i int) {
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}
