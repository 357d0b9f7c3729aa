package queue

import (
	"context"

	"github.com/joseph-ayodele/fieldmedia/constants"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status constants.UploadStatus
	JobID  string
}

func (f Filter) matches(it *Item) bool {
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.JobID != "" && it.JobID != f.JobID {
		return false
	}
	return true
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	// Get returns nil, nil when id is absent.
	Get(id string) (*Item, error)
	Insert(item *Item) error
	Update(item *Item) error
	Delete(id string) error
	// List returns matching items oldest first.
	List(f Filter) ([]*Item, error)
	Totals() (count int, bytes int64, err error)
}

// Store persists queue items. Each Update is one durable transaction; an
// error returned from fn rolls it back.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
