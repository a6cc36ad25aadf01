package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

type userSlot struct {
	mu    sync.Mutex
	index *Index
	// discarded is set under mu once Discard has unlinked the slot.
	discarded bool
}

// Registry holds the global index and one lazily created index per user.
// Mutations of a user's index are serialized by that user's lock; when a
// snapshot store is configured the index content is saved after every
// successful mutation.
type Registry struct {
	global *Index
	store  ports.IndexSnapshotStore
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]*userSlot
}

func NewRegistry(store ports.IndexSnapshotStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		global: NewIndex(),
		store:  store,
		logger: logger,
		users:  make(map[string]*userSlot),
	}
}

func (r *Registry) Global() ports.VectorIndex {
	return r.global
}

// Lookup never falls back to another user's or the global index.
func (r *Registry) Lookup(userID string) (ports.VectorIndex, bool) {
	r.mu.Lock()
	slot, ok := r.users[userID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return slot.index, true
}

func (r *Registry) MutateUser(ctx context.Context, userID string, fn func(ports.VectorIndex) error) error {
	if strings.TrimSpace(userID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "mutate user index", fmt.Errorf("user id is required"))
	}
	slot := r.lockedSlot(userID)
	defer slot.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(slot.index); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Save(userID, slot.index.Passages()); err != nil {
			r.logger.Warn("index_snapshot_save_failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// Discard drops the user's index and its snapshot. A mutation already
// holding the index finishes and saves first; the snapshot is deleted after.
func (r *Registry) Discard(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.users[userID]
	delete(r.users, userID)
	if ok {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		slot.discarded = true
		// readers still holding the index from Lookup see it empty
		slot.index.reset()
	}
	if r.store != nil {
		if err := r.store.Delete(userID); err != nil {
			return fmt.Errorf("delete index snapshot: %w", err)
		}
	}
	return nil
}

// Restore loads every persisted user index. It returns the number of users restored.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	users, err := r.store.Users()
	if err != nil {
		return 0, fmt.Errorf("list index snapshots: %w", err)
	}
	restored := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		passages, err := r.store.Load(userID)
		if err != nil {
			r.logger.Warn("index_snapshot_load_failed", "user_id", userID, "error", err)
			continue
		}
		if len(passages) == 0 {
			continue
		}
		slot := r.lockedSlot(userID)
		err = slot.index.CreateFromDocuments(ctx, passages)
		slot.mu.Unlock()
		if err != nil {
			r.logger.Warn("index_snapshot_restore_failed", "user_id", userID, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// lockedSlot returns the user's live slot with its lock held, creating the
// slot on first use. A slot discarded while we waited for its lock is skipped.
func (r *Registry) lockedSlot(userID string) *userSlot {
	for {
		r.mu.Lock()
		slot, ok := r.users[userID]
		if !ok {
			slot = &userSlot{index: NewUserIndex(userID)}
			r.users[userID] = slot
		}
		r.mu.Unlock()

		slot.mu.Lock()
		if !slot.discarded {
			return slot
		}
		slot.mu.Unlock()
	}
}
