package datastores

import (
	"context"
	"time"

	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// ObservedStore notifies after every successful write to the wrapped store.
type ObservedStore struct {
	Store
	notifier Notifier
	log      *logger.Logger
	nowFunc  func() time.Time
}

func Observed(store Store, notifier Notifier, log *logger.Logger) *ObservedStore {
	return &ObservedStore{
		Store:    store,
		notifier: notifier,
		log:      log.With("component", "ObservedStore"),
		nowFunc:  time.Now,
	}
}

func (o *ObservedStore) Create(ctx context.Context, rec *Record) error {
	if err := o.Store.Create(ctx, rec); err != nil {
		return err
	}
	snapshot := *rec
	o.notify(ctx, Event{Type: EventUpsert, ID: rec.ID, Record: &snapshot})
	return nil
}

func (o *ObservedStore) Update(ctx context.Context, id string, patch Patch) (*Record, error) {
	rec, err := o.Store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	snapshot := *rec
	o.notify(ctx, Event{Type: EventUpsert, ID: id, Record: &snapshot})
	return rec, nil
}

func (o *ObservedStore) Delete(ctx context.Context, id string) error {
	if err := o.Store.Delete(ctx, id); err != nil {
		return err
	}
	o.notify(ctx, Event{Type: EventDelete, ID: id})
	return nil
}

func (o *ObservedStore) notify(ctx context.Context, e Event) {
	e.At = o.nowFunc()
	if err := o.notifier.Notify(ctx, e); err != nil {
		o.log.Warn("record notification failed", "record_id", e.ID, "type", e.Type, "err", err)
	}
}
