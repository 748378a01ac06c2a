package attendance

import (
	"context"

	"examattendance/internal/store"
)

// DefaultStoreKey is the key holding the whole record sequence.
const DefaultStoreKey = "attendanceRecords"

// Notifier is told about every record after it has been stored.
type Notifier interface {
	RecordAppended(ctx context.Context, rec Record)
}

// Repository is the canonical, append-only sequence of records.
type Repository struct {
	records *store.Persistent[[]Record]
	notify  Notifier
}

// NewRepository wraps an already loaded persistent sequence. notify may be nil.
func NewRepository(records *store.Persistent[[]Record], notify Notifier) *Repository {
	return &Repository{records: records, notify: notify}
}

// OpenRepository hydrates the sequence stored under key in backend.
func OpenRepository(ctx context.Context, backend store.Backend, codec store.Codec, key string, notify Notifier, opts ...store.Option) *Repository {
	if key == "" {
		key = DefaultStoreKey
	}
	return NewRepository(store.Load(ctx, backend, codec, key, []Record{}, opts...), notify)
}

// Append adds rec to the end of the sequence. It never fails; a storage
// failure degrades to in-memory only and shows up in Err.
func (r *Repository) Append(ctx context.Context, rec Record) {
	r.records.Update(ctx, func(cur []Record) []Record {
		// full slice expression so earlier snapshots never share the new tail
		return append(cur[:len(cur):len(cur)], rec)
	})
	if r.notify != nil {
		r.notify.RecordAppended(ctx, rec)
	}
}

// All returns a copy of every record in insertion order.
func (r *Repository) All() []Record {
	cur := r.records.Get()
	out := make([]Record, len(cur))
	copy(out, cur)
	return out
}

// Len returns the number of stored records.
func (r *Repository) Len() int { return len(r.records.Get()) }

// Find returns the record with the given id. Ids are millisecond
// timestamps and may repeat; index picks among the records sharing id in
// insertion order, 0 being the first.
func (r *Repository) Find(id string, index int) (Record, bool) {
	for _, rec := range r.records.Get() {
		if rec.ID != id {
			continue
		}
		if index == 0 {
			return rec, true
		}
		index--
	}
	return Record{}, false
}

// Reload re-reads the sequence written by another process.
func (r *Repository) Reload(ctx context.Context) error {
	return r.records.Reload(ctx)
}

// Err reports whether the last write to storage failed.
func (r *Repository) Err() error { return r.records.Err() }
