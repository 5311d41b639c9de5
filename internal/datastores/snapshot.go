package datastores

import (
	"context"
	"fmt"
)

// Snapshot returns the current state: one record when id is set, every record otherwise.
func Snapshot(ctx context.Context, store Store, id string) ([]Record, error) {
	if id == "" {
		return store.List(ctx)
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []Record{}, nil
	}
	return []Record{*rec}, nil
}

// Watch subscribes before reading the snapshot so no change between the two is lost.
func Watch(ctx context.Context, store Store, hub *Hub, id string) ([]Record, *Subscription, error) {
	sub := hub.Subscribe(id)
	records, err := Snapshot(ctx, store, id)
	if err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	return records, sub, nil
}
