// Package auxstore keeps the supplementary per-session fields (join link,
// meeting id, passcode, class name, owning calendar) that the remote
// calendar does not model natively.
package auxstore

import (
	"context"

	"classcal/internal/apperrors"
	"classcal/internal/model"
)

// Store is a keyed mapping from session id to its auxiliary record.
// Missing ids are not an error: Get reports ok=false and Delete is a no-op.
type Store interface {
	All(ctx context.Context) (map[string]model.AuxRecord, error)
	Get(ctx context.Context, id string) (model.AuxRecord, bool, error)
	Put(ctx context.Context, id string, rec model.AuxRecord) error
	Delete(ctx context.Context, id string) error
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrAuxStore, op, err)
}
