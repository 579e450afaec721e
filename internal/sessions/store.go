// Package sessions persists session snapshots for hosts that want to restore
// conversations across runs. The run loop never touches a store directly; it
// works on live Session values exported and imported as snapshots.
package sessions

import (
	"context"
	"errors"

	"github.com/strandworks/strand/pkg/models"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Store saves and restores session snapshots opaquely.
type Store interface {
	Save(ctx context.Context, snap models.Snapshot) error
	Load(ctx context.Context, id string) (models.Snapshot, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}
