package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devalaya/temple-darshan/internal/domain"
)

// TempleRepository reads temple metadata. The admin collaborator owns the
// rows; this service never writes them.
type TempleRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Temple, error)
	List(ctx context.Context) ([]domain.Temple, error)
}

type templeRepository struct {
	pool *pgxpool.Pool
}

func NewTempleRepository(pool *pgxpool.Pool) TempleRepository {
	return &templeRepository{pool: pool}
}

const templeCols = `id, name, city, capacity_total, capacity_per_slot,
threshold_warning, threshold_critical, status, slots, closes_at, created_at, updated_at`

func scanTemple(row pgx.Row) (*domain.Temple, error) {
	var t domain.Temple
	err := row.Scan(
		&t.ID, &t.Name, &t.City, &t.CapacityTotal, &t.CapacityPerSlot,
		&t.ThresholdWarning, &t.ThresholdCritical, &t.Status,
		&t.Slots, &t.ClosesAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *templeRepository) GetByID(ctx context.Context, id int64) (*domain.Temple, error) {
	const q = `SELECT ` + templeCols + ` FROM temples WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTemple(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "get temple", err)
	}
	return t, nil
}

func (r *templeRepository) List(ctx context.Context) ([]domain.Temple, error) {
	const q = `SELECT ` + templeCols + ` FROM temples ORDER BY name ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "list temples", err)
	}
	defer rows.Close()

	var temples []domain.Temple
	for rows.Next() {
		t, err := scanTemple(rows)
		if err != nil {
			return nil, domain.WrapError(domain.CodeServiceUnavailable, "scan temple", err)
		}
		temples = append(temples, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "iterate temples", err)
	}
	return temples, nil
}
