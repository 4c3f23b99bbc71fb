// Package draftstore keeps the most recent contract draft per session and
// contract type so a later download or update does not have to regenerate
// it.
//
// Writes overwrite whole drafts and readers never see a partial one. Drafts
// are never deleted explicitly; the in-memory store forgets them on restart
// and the PostgreSQL store keeps them until pruned.
package draftstore

import (
	"context"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// Draft is a stored contract text.
type Draft struct {
	SessionID string
	Type      contract.Type
	Language  string
	Text      string
	UpdatedAt time.Time
}

// Store persists drafts keyed by (SessionID, Type).
type Store interface {
	// Put inserts or replaces the draft and sets d.UpdatedAt.
	Put(ctx context.Context, d *Draft) error

	// Get returns the draft or an error wrapping [contract.ErrDraftNotFound].
	Get(ctx context.Context, sessionID string, t contract.Type) (*Draft, error)
}
