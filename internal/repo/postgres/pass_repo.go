package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devalaya/temple-darshan/internal/domain"
)

// PassRepository is the durable booking ledger. Passes are never deleted,
// only transitioned.
type PassRepository interface {
	// CreateConfirmed inserts a CONFIRMED pass after re-validating slot
	// capacity inside the same transaction, serialized on the temple row.
	// Losers of a capacity race get a CAPACITY_EXCEEDED domain error.
	CreateConfirmed(ctx context.Context, req *domain.PassRequest, date time.Time, passID string, defaultSlotCap int) (*domain.Pass, int, error)

	FindByPassID(ctx context.Context, passID string) (*domain.Pass, error)

	// UpdateStatusIf flips the pass status only if it still equals from,
	// stamping entered_at/exited_at as appropriate. Returns false when the
	// compare-and-set lost.
	UpdateStatusIf(ctx context.Context, passID string, from, to domain.PassStatus) (bool, error)

	// SumVisitors totals visitor counts for a (temple, date, slot) key over
	// the given statuses.
	SumVisitors(ctx context.Context, templeID int64, date time.Time, slot string, statuses []domain.PassStatus) (int, error)

	// SumEntered totals visitors over all passes currently ENTERED at the
	// temple; the authoritative occupancy for reconciliation.
	SumEntered(ctx context.Context, templeID int64) (int64, error)

	ListEntered(ctx context.Context, templeID int64) ([]domain.Pass, error)
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]domain.Pass, error)

	// ForceExitEntered transitions every ENTERED pass of the temple to
	// EXITED; closing-time rollover. Returns the number of passes flipped.
	ForceExitEntered(ctx context.Context, templeID int64) (int64, error)

	DailyStats(ctx context.Context, templeID int64, from, to time.Time) (*GateStats, error)
}

// GateStats summarizes one day of gate activity for a temple.
type GateStats struct {
	Entries         int64 `json:"entries"`
	Exits           int64 `json:"exits"`
	VisitorsEntered int64 `json:"visitors_entered"`
	VisitorsExited  int64 `json:"visitors_exited"`
}

type passRepository struct {
	pool *pgxpool.Pool
}

func NewPassRepository(pool *pgxpool.Pool) PassRepository {
	return &passRepository{pool: pool}
}

const passCols = `id, pass_id, temple_id, visitor_name, visitor_email,
date, slot, visitors, status, entered_at, exited_at, created_at, updated_at`

func scanPass(row pgx.Row) (*domain.Pass, error) {
	var p domain.Pass
	err := row.Scan(
		&p.ID, &p.PassID, &p.TempleID, &p.VisitorName, &p.VisitorEmail,
		&p.Date, &p.Slot, &p.Visitors, &p.Status,
		&p.EnteredAt, &p.ExitedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *passRepository) CreateConfirmed(ctx context.Context, req *domain.PassRequest, date time.Time, passID string, defaultSlotCap int) (*domain.Pass, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, domain.WrapError(domain.CodeServiceUnavailable, "begin reservation", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row-level lock on the temple serializes concurrent check-and-reserve
	// sequences for the same temple; a bare read-then-insert would let two
	// simultaneous bookings both pass the check.
	var perSlot int
	var status domain.TempleStatus
	err = tx.QueryRow(ctx,
		`SELECT capacity_per_slot, status FROM temples WHERE id=$1 FOR UPDATE`,
		req.TempleID,
	).Scan(&perSlot, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, domain.NewError(domain.CodeTempleNotFound, "temple not found")
		}
		return nil, 0, domain.WrapError(domain.CodeServiceUnavailable, "lock temple row", err)
	}
	if status != domain.TempleOpen {
		return nil, 0, domain.NewError(domain.CodeTempleClosed, "temple is not open for booking")
	}

	capacity := perSlot
	if capacity <= 0 {
		capacity = defaultSlotCap
	}

	var reserved int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(visitors), 0) FROM passes
		 WHERE temple_id=$1 AND date=$2 AND slot=$3 AND status = ANY($4)`,
		req.TempleID, date, req.Slot,
		[]string{string(domain.PassConfirmed), string(domain.PassEntered)},
	).Scan(&reserved)
	if err != nil {
		return nil, 0, domain.WrapError(domain.CodeServiceUnavailable, "sum slot reservations", err)
	}

	if reserved+req.Visitors > capacity {
		return nil, capacity - reserved, domain.NewError(domain.CodeCapacityExceeded, "slot is full or has insufficient space")
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO passes (pass_id, temple_id, visitor_name, visitor_email, date, slot, visitors, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+passCols,
		passID, req.TempleID, req.VisitorName, req.VisitorEmail,
		date, req.Slot, req.Visitors, domain.PassConfirmed,
	)
	p, err := scanPass(row)
	if err != nil {
		return nil, 0, domain.WrapError(domain.CodeServiceUnavailable, "insert pass", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, domain.WrapError(domain.CodeServiceUnavailable, "commit reservation", err)
	}
	return p, capacity - reserved - req.Visitors, nil
}

func (r *passRepository) FindByPassID(ctx context.Context, passID string) (*domain.Pass, error) {
	const q = `SELECT ` + passCols + ` FROM passes WHERE pass_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPass(r.pool.QueryRow(ctx, q, passID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "find pass", err)
	}
	return p, nil
}

func (r *passRepository) UpdateStatusIf(ctx context.Context, passID string, from, to domain.PassStatus) (bool, error) {
	var q string
	switch to {
	case domain.PassEntered:
		q = `UPDATE passes SET status=$3, entered_at=now(), updated_at=now() WHERE pass_id=$1 AND status=$2`
	case domain.PassExited:
		q = `UPDATE passes SET status=$3, exited_at=now(), updated_at=now() WHERE pass_id=$1 AND status=$2`
	default:
		q = `UPDATE passes SET status=$3, updated_at=now() WHERE pass_id=$1 AND status=$2`
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, passID, from, to)
	if err != nil {
		return false, domain.WrapError(domain.CodeServiceUnavailable, "conditional status update", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *passRepository) SumVisitors(ctx context.Context, templeID int64, date time.Time, slot string, statuses []domain.PassStatus) (int, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var sum int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(visitors), 0) FROM passes
		 WHERE temple_id=$1 AND date=$2 AND slot=$3 AND status = ANY($4)`,
		templeID, date, slot, ss,
	).Scan(&sum)
	if err != nil {
		return 0, domain.WrapError(domain.CodeServiceUnavailable, "sum visitors", err)
	}
	return sum, nil
}

func (r *passRepository) SumEntered(ctx context.Context, templeID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(visitors), 0) FROM passes WHERE temple_id=$1 AND status=$2`,
		templeID, domain.PassEntered,
	).Scan(&sum)
	if err != nil {
		return 0, domain.WrapError(domain.CodeServiceUnavailable, "sum entered visitors", err)
	}
	return sum, nil
}

func (r *passRepository) ListEntered(ctx context.Context, templeID int64) ([]domain.Pass, error) {
	const q = `SELECT ` + passCols + ` FROM passes
		WHERE temple_id=$1 AND status=$2 ORDER BY entered_at ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, templeID, domain.PassEntered)
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "list entered passes", err)
	}
	defer rows.Close()

	return collectPasses(rows)
}

func (r *passRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]domain.Pass, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + passCols + ` FROM passes
		WHERE lower(visitor_email)=lower($1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, email, limit, offset)
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "list passes by email", err)
	}
	defer rows.Close()

	return collectPasses(rows)
}

func (r *passRepository) ForceExitEntered(ctx context.Context, templeID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`UPDATE passes SET status=$3, exited_at=now(), updated_at=now()
		 WHERE temple_id=$1 AND status=$2`,
		templeID, domain.PassEntered, domain.PassExited,
	)
	if err != nil {
		return 0, domain.WrapError(domain.CodeServiceUnavailable, "force exit entered passes", err)
	}
	return result.RowsAffected(), nil
}

func (r *passRepository) DailyStats(ctx context.Context, templeID int64, from, to time.Time) (*GateStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s GateStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE entered_at >= $2 AND entered_at < $3),
			COUNT(*) FILTER (WHERE exited_at >= $2 AND exited_at < $3),
			COALESCE(SUM(visitors) FILTER (WHERE entered_at >= $2 AND entered_at < $3), 0),
			COALESCE(SUM(visitors) FILTER (WHERE exited_at >= $2 AND exited_at < $3), 0)
		 FROM passes WHERE temple_id=$1`,
		templeID, from, to,
	).Scan(&s.Entries, &s.Exits, &s.VisitorsEntered, &s.VisitorsExited)
	if err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "daily gate stats", err)
	}
	return &s, nil
}

func collectPasses(rows pgx.Rows) ([]domain.Pass, error) {
	var passes []domain.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, domain.WrapError(domain.CodeServiceUnavailable, "scan pass", err)
		}
		passes = append(passes, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.CodeServiceUnavailable, "iterate passes", err)
	}
	return passes, nil
}
