// Package reconcile holds the shared contract between the sync caches:
// the error taxonomy, content validation, the capability gate, per-entity
// pending flags, and idempotent merge-by-id helpers.
package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/communekit/core/internal/models"
)

var (
	// ErrValidation is returned before any remote call when input is
	// locally invalid.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is returned when the actor lacks the required
	// capability for a mutation.
	ErrUnauthorized = errors.New("not allowed")
	// ErrRemote wraps network failures, timeouts and non-success gateway
	// responses.
	ErrRemote = errors.New("remote call failed")
	// ErrClosed is returned by operations on a torn-down cache.
	ErrClosed = errors.New("cache closed")
	// ErrPending is returned when a mutation for the same entity is
	// already in flight.
	ErrPending = errors.New("operation already in flight")
	// ErrNotFound is returned when the target entity is not held locally.
	ErrNotFound = errors.New("not held locally")
)

// Remote wraps a gateway error into the remote error class.
func Remote(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRemote, err)
}

// ValidateContent checks that trimmed content is 1 to 2000 runes.
// Runs before any network call.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > models.MaxCommentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, models.MaxCommentLength)
	}
	return nil
}

// Actor identifies who is issuing an intent, with their capability role.
type Actor struct {
	ID   string
	Role models.UserRole
}

// CanCreate reports whether the actor may create comments.
func (a Actor) CanCreate() bool { return a.ID != "" }

// CanModerate reports whether the actor may edit or delete others' comments.
func (a Actor) CanModerate() bool { return a.ID != "" && a.Role == models.RoleModerator }

// CanActOn reports whether the actor owns the given recipient's feed.
func (a Actor) CanActOn(recipientID string) bool { return a.ID != "" && a.ID == recipientID }

// PendingSet tracks entity ids with a mutation in flight. It is not
// goroutine-safe; callers guard it with the owning cache's lock.
type PendingSet map[string]struct{}

// TryAcquire marks the id pending; false if already pending.
func (p PendingSet) TryAcquire(id string) bool {
	if _, ok := p[id]; ok {
		return false
	}
	p[id] = struct{}{}
	return true
}

// Release clears the pending mark.
func (p PendingSet) Release(id string) { delete(p, id) }

// Has reports whether the id has a mutation in flight.
func (p PendingSet) Has(id string) bool {
	_, ok := p[id]
	return ok
}

// IDs returns the pending ids (for pending-flag queries).
func (p PendingSet) IDs() []string {
	out := make([]string, 0, len(p))
	for id := range p {
		out = append(out, id)
	}
	return out
}

// ContainsID reports whether the slice already holds an item with the id.
func ContainsID[T any](items []T, id string, idOf func(T) string) bool {
	for i := range items {
		if idOf(items[i]) == id {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the item with the id, or -1.
func IndexOf[T any](items []T, id string, idOf func(T) string) int {
	for i := range items {
		if idOf(items[i]) == id {
			return i
		}
	}
	return -1
}

// MergeAppend appends incoming items that are not yet present, preserving
// the order of both slices. Re-processing the same record is a no-op.
func MergeAppend[T any](dst []T, incoming []T, idOf func(T) string) []T {
	for i := range incoming {
		if !ContainsID(dst, idOf(incoming[i]), idOf) {
			dst = append(dst, incoming[i])
		}
	}
	return dst
}

// RemoveID deletes the item with the id, reporting whether it was present.
func RemoveID[T any](items []T, id string, idOf func(T) string) ([]T, bool) {
	idx := IndexOf(items, id, idOf)
	if idx < 0 {
		return items, false
	}
	return append(items[:idx], items[idx+1:]...), true
}
