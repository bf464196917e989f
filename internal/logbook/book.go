package logbook

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for entry ids outside [0, len).
	ErrOutOfRange = errors.New("logbook: entry id out of range")

	// ErrDayRegression is returned when an appended entry's day is lower
	// than the book's current maximum day.
	ErrDayRegression = errors.New("logbook: day must be non-decreasing")
)

// Book is the ordered, 0-indexed, append-only sequence of entries. Entries
// are never reordered or deleted; the whole book is discarded instead.
//
// Book is not safe for concurrent use. Each book is owned by exactly one
// interactor, which serializes all mutation.
type Book struct {
	entries []*Entry

	// firstOfDay maps day -> id of that day's first entry.
	firstOfDay map[int]int
	maxDay     int
}

// New returns an empty book.
func New() *Book {
	return &Book{firstOfDay: make(map[int]int), maxDay: 0}
}

// FromEntries builds a book from a deserialized batch, reassigning ids in
// order and rebuilding the day map in one O(n) pass.
func FromEntries(entries []*Entry) (*Book, error) {
	b := New()
	for _, e := range entries {
		if _, err := b.AddEntry(e); err != nil {
			return nil, fmt.Errorf("logbook: entry %d: %w", len(b.entries), err)
		}
	}
	return b, nil
}

// Snapshot returns an independent copy of the book's index: a fresh entry
// slice and day map over the same entries. Entries are immutable once
// appended, so the snapshot stays safe to read while the original keeps
// growing.
func (b *Book) Snapshot() *Book {
	out := &Book{
		entries:    append([]*Entry(nil), b.entries...),
		firstOfDay: make(map[int]int, len(b.firstOfDay)),
		maxDay:     b.maxDay,
	}
	for day, id := range b.firstOfDay {
		out.firstOfDay[day] = id
	}
	return out
}

// Len returns the number of entries.
func (b *Book) Len() int { return len(b.entries) }

// LastEntryID returns the id of the final entry, or -1 for an empty book.
func (b *Book) LastEntryID() int { return len(b.entries) - 1 }

// MaxDay returns the highest day recorded, or 0 for an empty book.
func (b *Book) MaxDay() int { return b.maxDay }

// Entry returns the entry at position id.
func (b *Book) Entry(id int) (*Entry, error) {
	if id < 0 || id >= len(b.entries) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, id, len(b.entries))
	}
	return b.entries[id], nil
}

// Entries returns the underlying entry slice. Callers must not mutate it.
func (b *Book) Entries() []*Entry { return b.entries }

// AddEntry appends the entry and returns its assigned id. The day map is
// extended incrementally; a full rebuild is only needed for batch loads,
// which FromEntries performs by appending in order.
func (b *Book) AddEntry(e *Entry) (int, error) {
	if e.Day < 0 {
		e.Day = b.maxDay
	}
	if len(b.entries) > 0 && e.Day < b.maxDay {
		return -1, fmt.Errorf("%w: day %d after day %d", ErrDayRegression, e.Day, b.maxDay)
	}

	id := len(b.entries)
	e.ID = id
	if _, seen := b.firstOfDay[e.Day]; !seen {
		b.firstOfDay[e.Day] = id
	}
	b.maxDay = e.Day
	b.entries = append(b.entries, e)
	return id, nil
}

// MakeEntryFromRaw builds a candidate entry from raw user fields. The day
// defaults to the book's current maximum day, so new entries land "later
// today" unless the caller names a day explicitly.
func (b *Book) MakeEntryFromRaw(raw map[string]any) *Entry {
	e := entryFromRaw(raw)
	if e.Day < 0 {
		e.Day = b.maxDay
	}
	return e
}

// FirstEntryOfDay returns the id of the first entry recorded on day.
func (b *Book) FirstEntryOfDay(day int) (int, bool) {
	id, ok := b.firstOfDay[day]
	return id, ok
}

// LastEntryOfDay returns the id of the last entry recorded on day: the entry
// just before the next day's first entry, or the book's last entry when day
// is the final day.
func (b *Book) LastEntryOfDay(day int) (int, bool) {
	if _, ok := b.firstOfDay[day]; !ok {
		return 0, false
	}
	// Scan forward for the next day that has entries. Days may be sparse.
	for d := day + 1; d <= b.maxDay; d++ {
		if first, ok := b.firstOfDay[d]; ok {
			return first - 1, true
		}
	}
	return len(b.entries) - 1, true
}
