// Package memory is an in-process repository.Database. Units of work are
// serialised by one mutex and applied copy-on-commit, so a failing unit
// leaves no trace. It backs the service tests and local runs without Postgres.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Freeeeeet/tutor_scheduler/internal/clock"
	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

type slotKey struct {
	teacherID int64
	date      string
	index     int
}

type state struct {
	slots        map[slotKey]*model.AvailabilitySlot
	bookings     map[uuid.UUID]*model.Booking
	batches      map[int64]*model.CreditBatch
	records      []*model.ConsumptionRecord
	nextBatchID  int64
	nextRecordID int64
}

func newState() *state {
	return &state{
		slots:    make(map[slotKey]*model.AvailabilitySlot),
		bookings: make(map[uuid.UUID]*model.Booking),
		batches:  make(map[int64]*model.CreditBatch),
	}
}

func (s *state) clone() *state {
	c := &state{
		slots:        make(map[slotKey]*model.AvailabilitySlot, len(s.slots)),
		bookings:     make(map[uuid.UUID]*model.Booking, len(s.bookings)),
		batches:      make(map[int64]*model.CreditBatch, len(s.batches)),
		records:      make([]*model.ConsumptionRecord, len(s.records)),
		nextBatchID:  s.nextBatchID,
		nextRecordID: s.nextRecordID,
	}
	for k, v := range s.slots {
		c.slots[k] = copySlot(v)
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.batches {
		c.batches[k] = copyBatch(v)
	}
	// records are immutable once appended
	copy(c.records, s.records)
	return c
}

// access runs fn against a state, either under the DB lock or inside a unit of work.
type access interface {
	do(fn func(st *state) error) error
	now() clock.Clock
}

type DB struct {
	mu    sync.Mutex
	st    *state
	clock clock.Clock
	store
}

// NewDB создаёт пустую базу в памяти
func NewDB(c clock.Clock) *DB {
	if c == nil {
		c = clock.System{}
	}
	d := &DB{st: newState(), clock: c}
	d.store = newStore(autoCommit{db: d})
	return d
}

// WithinTx выполняет fn на копии состояния и публикует её только при успехе
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	working := d.st.clone()
	if err := fn(ctx, newStore(txAccess{st: working, clock: d.clock})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.st = working
	return nil
}

type autoCommit struct {
	db *DB
}

func (a autoCommit) do(fn func(st *state) error) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	return fn(a.db.st)
}

func (a autoCommit) now() clock.Clock { return a.db.clock }

type txAccess struct {
	st    *state
	clock clock.Clock
}

func (t txAccess) do(fn func(st *state) error) error { return fn(t.st) }
func (t txAccess) now() clock.Clock                  { return t.clock }

type store struct {
	slots    *SlotRepository
	bookings *BookingRepository
	credits  *CreditRepository
}

func newStore(a access) store {
	return store{
		slots:    &SlotRepository{a: a},
		bookings: &BookingRepository{a: a},
		credits:  &CreditRepository{a: a},
	}
}

func (s store) Slots() repository.SlotRepository       { return s.slots }
func (s store) Bookings() repository.BookingRepository { return s.bookings }
func (s store) Credits() repository.CreditRepository   { return s.credits }

func copySlot(s *model.AvailabilitySlot) *model.AvailabilitySlot {
	c := *s
	if s.BookingID != nil {
		id := *s.BookingID
		c.BookingID = &id
	}
	if s.Reason != nil {
		r := *s.Reason
		c.Reason = &r
	}
	return &c
}

func copyBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.CancelCause != nil {
		v := *b.CancelCause
		c.CancelCause = &v
	}
	if b.CanceledAt != nil {
		v := *b.CanceledAt
		c.CanceledAt = &v
	}
	return &c
}

func copyBatch(b *model.CreditBatch) *model.CreditBatch {
	c := *b
	if b.CourseID != nil {
		v := *b.CourseID
		c.CourseID = &v
	}
	if b.ActivatedAt != nil {
		v := *b.ActivatedAt
		c.ActivatedAt = &v
	}
	if b.ExpiresAt != nil {
		v := *b.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}
