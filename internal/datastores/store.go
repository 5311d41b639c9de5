// Package datastores persists the HealthLake datastore projection records and
// fans record changes out to observers.
package datastores

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("datastore record not found")
	ErrAlreadyExists     = errors.New("datastore record already exists")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrDatastoreIDSet    = errors.New("datastore_id already set")
)

// Store is the projection record store. Get returns (nil, nil) when the record
// does not exist.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, id string, patch Patch) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
}

func illegal(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
