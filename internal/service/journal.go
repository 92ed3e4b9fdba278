package service

import (
	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/domain"
)

// bookJournal implements the record-then-commit rollback scheme spec
// §4.8 describes for undoing in-memory book mutations: it snapshots a
// book's resting orders once, before any mutation, and restores that
// snapshot to undo whatever a transaction attempt did to the book.
// reset() runs at the top of every attempt (undoing a previous, failed
// attempt before the next one starts mutating); rollback does the same
// once more after the final attempt fails for good.
type bookJournal struct {
	b        *book.OrderBook
	baseline []*domain.Order
}

func newBookJournal(b *book.OrderBook) *bookJournal {
	return &bookJournal{b: b, baseline: b.Snapshot()}
}

func (j *bookJournal) reset()    { j.b.ResetTo(j.baseline) }
func (j *bookJournal) rollback() { j.b.ResetTo(j.baseline) }
