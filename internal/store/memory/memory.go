// Package memory implements store.Store in process memory. It is used when
// no database is configured and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

// Store is a mutex-guarded in-memory store.Store.
type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	drafts map[string]*model.Draft
	events []*model.Event
	nextID int64
	now    func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		drafts: make(map[string]*model.Draft),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateDraft(_ context.Context, d *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[d.ID]; ok {
		return fmt.Errorf("draft %s already exists", d.ID)
	}
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	cp := *d
	s.drafts[d.ID] = &cp
	return nil
}

func (s *Store) GetDraft(_ context.Context, id string) (*model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDrafts(_ context.Context, filter model.DraftFilter) ([]*model.Draft, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var out []*model.Draft
	for _, d := range s.drafts {
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		if filter.CreatedBy != "" && d.CreatedBy != filter.CreatedBy {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	less := draftLess(filter.Sort)
	sort.Slice(out, func(i, j int) bool {
		if c := less(out[i], out[j]); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, total, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (s *Store) UpdateDraft(_ context.Context, d *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.drafts[d.ID]
	if !ok {
		return store.ErrNotFound
	}
	d.CreatedAt = old.CreatedAt
	d.CreatedBy = old.CreatedBy
	d.UpdatedAt = s.now()
	cp := *d
	s.drafts[d.ID] = &cp
	return nil
}

func (s *Store) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = s.now()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) GetEvents(_ context.Context, draftID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.DraftID == draftID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// draftLess returns a three-way comparison for a sort key such as
// "-updated_at". Unknown columns sort newest first.
func draftLess(key string) func(a, b *model.Draft) int {
	desc := strings.HasPrefix(key, "-")
	var cmp func(a, b *model.Draft) int
	switch strings.TrimPrefix(key, "-") {
	case "name":
		cmp = func(a, b *model.Draft) int { return strings.Compare(a.Name, b.Name) }
	case "updated_at":
		cmp = func(a, b *model.Draft) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case "created_at":
		cmp = func(a, b *model.Draft) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return func(a, b *model.Draft) int { return b.CreatedAt.Compare(a.CreatedAt) }
	}
	if desc {
		return func(a, b *model.Draft) int { return cmp(b, a) }
	}
	return cmp
}

// RunInTransaction serializes fn against other transactions. fn runs
// against a private copy of the drafts; only the drafts it touched and the
// events it recorded are applied to the store, and only if fn succeeds.
// Writes made outside the transaction in the meantime are kept.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	local := &Store{drafts: make(map[string]*model.Draft, len(s.drafts)), now: s.now}
	for k, v := range s.drafts {
		local.drafts[k] = v
	}
	s.mu.RUnlock()

	tx := &txStore{Store: local, parent: s, touched: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// txStore is the view a transaction callback writes through. Drafts live in
// the embedded tx-local Store; events are held until commit.
type txStore struct {
	*Store
	parent  *Store
	touched map[string]bool
	pending []*model.Event
}

var _ store.Store = (*txStore)(nil)

func (tx *txStore) CreateDraft(ctx context.Context, d *model.Draft) error {
	if err := tx.Store.CreateDraft(ctx, d); err != nil {
		return err
	}
	tx.touched[d.ID] = true
	return nil
}

func (tx *txStore) UpdateDraft(ctx context.Context, d *model.Draft) error {
	if err := tx.Store.UpdateDraft(ctx, d); err != nil {
		return err
	}
	tx.touched[d.ID] = true
	return nil
}

func (tx *txStore) DeleteDraft(ctx context.Context, id string) error {
	if err := tx.Store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	tx.touched[id] = true
	return nil
}

// RecordEvent queues e; it gets its ID when the transaction commits.
func (tx *txStore) RecordEvent(_ context.Context, e *model.Event) error {
	tx.pending = append(tx.pending, e)
	return nil
}

// GetEvents returns committed events followed by this transaction's queued ones.
func (tx *txStore) GetEvents(ctx context.Context, draftID string) ([]*model.Event, error) {
	out, err := tx.parent.GetEvents(ctx, draftID)
	if err != nil {
		return nil, err
	}
	for _, e := range tx.pending {
		if e.DraftID == draftID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// RunInTransaction on a txStore reuses the open transaction.
func (tx *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(tx)
}

func (tx *txStore) commit() {
	p := tx.parent
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range tx.touched {
		if d, ok := tx.Store.drafts[id]; ok {
			p.drafts[id] = d
		} else {
			delete(p.drafts, id)
		}
	}
	for _, e := range tx.pending {
		p.nextID++
		e.ID = p.nextID
		e.CreatedAt = p.now()
		cp := *e
		p.events = append(p.events, &cp)
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
