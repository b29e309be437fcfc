package storage

import (
	"context"
)

// ArchiveStorage defines the interface for exporting archive snapshots to
// object storage. Export is best-effort: housekeeping logs failures and
// carries on, since the archived documents stay in the database either way.
type ArchiveStorage interface {
	// PutSnapshot uploads a JSON snapshot under the given object key.
	PutSnapshot(ctx context.Context, objectKey string, body []byte) error
}
