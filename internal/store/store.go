// Package store is the document store behind the username registry: the
// registry itself, pending creator profiles, pending role grants, and the
// profile side of real accounts.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a keyed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrTxConflict is returned when a transaction lost an optimistic
	// concurrency race. The caller decides whether to retry.
	ErrTxConflict = errors.New("transaction conflict")
)

// Tx is the set of per-document operations. Store implements it with one
// implicit transaction per call; RunInTx hands out a Tx whose writes commit
// together.
type Tx interface {
	GetUsername(ctx context.Context, key string) (UsernameRecord, error)
	PutUsername(ctx context.Context, record UsernameRecord) error
	DeleteUsername(ctx context.Context, key string) error

	GetPendingProfile(ctx context.Context, id string) (PendingProfile, error)
	PutPendingProfile(ctx context.Context, profile PendingProfile) error
	DeletePendingProfile(ctx context.Context, id string) error
	FindPendingProfilesByEmail(ctx context.Context, email, status string) ([]PendingProfile, error)

	PutRoleGrant(ctx context.Context, grant PendingRoleGrant) error
	DeleteRoleGrantsBySource(ctx context.Context, source string) (int, error)

	GetAccount(ctx context.Context, id string) (Account, error)
	PutAccount(ctx context.Context, account Account) error
	AccountExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Store is the full collaborator surface.
type Store interface {
	Tx

	RunInTx(ctx context.Context, fn func(Tx) error) error

	// ListPendingProfiles pages through profiles in id order, starting after afterID.
	ListPendingProfiles(ctx context.Context, afterID string, limit int) ([]PendingProfile, error)
	// ListPendingProfilesByStatus pages through profiles with the given status.
	ListPendingProfilesByStatus(ctx context.Context, status, afterID string, limit int) ([]PendingProfile, error)
	// ListUsernames pages through registry records in key order.
	ListUsernames(ctx context.Context, afterKey string, limit int) ([]UsernameRecord, error)
	// ListUsernamesByPrefix returns records whose key starts with prefix.
	ListUsernamesByPrefix(ctx context.Context, prefix string, limit int) ([]UsernameRecord, error)
	ListRoleGrants(ctx context.Context, email string) ([]PendingRoleGrant, error)

	Ping(ctx context.Context) error
}
