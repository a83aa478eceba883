// Package registry keeps host records in a slice sorted by hostname.
//
// Sorted order exists for stable table rendering; lookups use binary search
// over the same slice. A Registry is not safe for concurrent use: the
// aggregation engine is its only writer and all iteration happens between
// events on the engine's goroutine.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/host"
)

var (
	// ErrDuplicateKey is returned when inserting a hostname that is already present.
	ErrDuplicateKey = errors.New("duplicate hostname")

	// ErrNotFound is returned when removing a hostname that is not present.
	ErrNotFound = errors.New("hostname not found")
)

// Registry is an ordered set of records keyed by hostname.
type Registry struct {
	records []*host.Record
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// search returns the position of hostname, or where it would be inserted,
// and whether it is present.
func (r *Registry) search(hostname string) (int, bool) {
	i := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].Hostname >= hostname
	})
	return i, i < len(r.records) && r.records[i].Hostname == hostname
}

// Get returns the record for hostname, or nil.
func (r *Registry) Get(hostname string) *host.Record {
	if i, ok := r.search(hostname); ok {
		return r.records[i]
	}
	return nil
}

// GetOrCreate returns the existing record for hostname or inserts an empty
// one in sorted position. The boolean reports whether a record was created.
func (r *Registry) GetOrCreate(hostname string, now time.Time) (*host.Record, bool, error) {
	if rec := r.Get(hostname); rec != nil {
		return rec, false, nil
	}
	rec := host.New(hostname, now)
	if _, err := r.Insert(rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Insert adds rec in sorted position and returns its index.
func (r *Registry) Insert(rec *host.Record) (int, error) {
	i, ok := r.search(rec.Hostname)
	if ok {
		return i, fmt.Errorf("insert %q: %w", rec.Hostname, ErrDuplicateKey)
	}
	r.records = append(r.records, nil)
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = rec
	return i, nil
}

// Remove deletes the record for hostname.
func (r *Registry) Remove(hostname string) error {
	i, ok := r.search(hostname)
	if !ok {
		return fmt.Errorf("remove %q: %w", hostname, ErrNotFound)
	}
	copy(r.records[i:], r.records[i+1:])
	r.records[len(r.records)-1] = nil
	r.records = r.records[:len(r.records)-1]
	return nil
}

// At returns the record at index i in sorted order.
func (r *Registry) At(i int) *host.Record {
	return r.records[i]
}

// All yields records in hostname order. The sequence is restartable; each
// call to the returned function walks the registry from the start.
func (r *Registry) All() iter.Seq[*host.Record] {
	return func(yield func(*host.Record) bool) {
		for _, rec := range r.records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Hostnames returns every hostname in sorted order.
func (r *Registry) Hostnames() []string {
	names := make([]string, len(r.records))
	for i, rec := range r.records {
		names[i] = rec.Hostname
	}
	return names
}

// CheckSorted verifies the ordering invariant: strictly increasing hostnames.
func (r *Registry) CheckSorted() error {
	for i := 1; i < len(r.records); i++ {
		prev, cur := r.records[i-1].Hostname, r.records[i].Hostname
		if prev >= cur {
			return fmt.Errorf("registry out of order at %d: %q >= %q", i, prev, cur)
		}
	}
	return nil
}
