package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

// Querier - общий интерфейс пула и транзакции
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB реализует repository.Database поверх пула соединений
type DB struct {
	pool *pgxpool.Pool
	store
}

// NewDB создаёт адаптер над пулом
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool, store: newStore(pool)}
}

// WithinTx выполняет fn в одной транзакции; любая ошибка откатывает всё
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type store struct {
	slots    *SlotRepository
	bookings *BookingRepository
	credits  *CreditRepository
}

func newStore(q Querier) store {
	return store{
		slots:    NewSlotRepository(q),
		bookings: NewBookingRepository(q),
		credits:  NewCreditRepository(q),
	}
}

func (s store) Slots() repository.SlotRepository       { return s.slots }
func (s store) Bookings() repository.BookingRepository { return s.bookings }
func (s store) Credits() repository.CreditRepository   { return s.credits }

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation распознаёт нарушение уникального ключа
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isExclusionViolation распознаёт срабатывание EXCLUDE-ограничения
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
