// Package repository содержит реализацию хранилища заказов в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInvalidOrder возвращается, если заказ нарушает ограничения схемы.
var ErrInvalidOrder = errors.New("order violates storage constraints")

// PostgresRepository предоставляет доступ к хранилищу заказов в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

func withRetry(ctx context.Context, delays []time.Duration, fn func() error) error {
	var err error

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.CheckViolation ||
		pgErr.Code == pgerrcode.NotNullViolation ||
		pgErr.Code == pgerrcode.ForeignKeyViolation ||
		pgErr.Code == pgerrcode.InvalidTextRepresentation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateOrder сохраняет заказ с позициями. Повторная отправка заказа с тем же идентификатором
// не создаёт дубликат и возвращает false.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.OrderPayload) (bool, error) {
	id, err := uuid.Parse(order.OrderID)
	if err != nil {
		return false, fmt.Errorf("%w: order id %q", ErrInvalidOrder, order.OrderID)
	}

	pickup, err := time.Parse(model.DateLayout, order.PickupDate)
	if err != nil {
		return false, fmt.Errorf("%w: pickup date %q", ErrInvalidOrder, order.PickupDate)
	}

	submittedAt, err := time.Parse(time.RFC3339, order.Timestamp)
	if err != nil {
		submittedAt = time.Now().UTC()
	}

	var created bool
	err = withRetry(ctx, retryDelays, func() error {
		var txErr error
		created, txErr = r.createOrderTx(ctx, id, order, pickup, submittedAt)
		return txErr
	})
	if err != nil {
		if isConstraintViolation(err) {
			return false, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		return false, err
	}

	return created, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, id uuid.UUID, order model.OrderPayload, pickup, submittedAt time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO orders (id, name, contact, pickup_date, notes, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		id, order.Name, order.Contact, pickup, order.Notes, submittedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	for i, line := range order.Cart {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_lines (order_id, line_no, item_name, size_label, quantity, unit_price_cents, line_total_cents)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i, line.ItemName, line.SizeLabel, line.Quantity,
			line.UnitPrice.Shift(2).Round(0).IntPart(),
			line.LineTotal.Shift(2).Round(0).IntPart(),
		)
		if err != nil {
			return false, fmt.Errorf("insert order line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// CountsFrom возвращает суммарное количество заказанных единиц по датам самовывоза, начиная с from.
func (r *PostgresRepository) CountsFrom(ctx context.Context, from time.Time) (model.RemoteCounts, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.pickup_date, COALESCE(SUM(l.quantity), 0)
		 FROM orders o
		 JOIN order_lines l ON l.order_id = o.id
		 WHERE o.pickup_date >= $1
		 GROUP BY o.pickup_date`,
		time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("select counts: %w", err)
	}
	defer rows.Close()

	counts := model.RemoteCounts{}
	for rows.Next() {
		var (
			pickup time.Time
			total  int64
		)
		if err := rows.Scan(&pickup, &total); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts[model.DateKey(pickup)] = int(total)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}
