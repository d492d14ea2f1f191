package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sicklecare/sicklecare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Pain Event Repository ===========

type painEventRepoPG struct{ pool *pgxpool.Pool }

func NewPainEventRepoPG(pool *pgxpool.Pool) PainEventRepository {
	return &painEventRepoPG{pool: pool}
}

func (r *painEventRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const painCols = `id, subject_id, occurred_at, pain_score, fatigue, body_sites, tags,
	duration_min, notes, created_at, updated_at`

func (r *painEventRepoPG) scan(row pgx.Row) (*PainEvent, error) {
	var e PainEvent
	err := row.Scan(&e.ID, &e.SubjectID, &e.OccurredAt, &e.PainScore, &e.Fatigue,
		&e.BodySites, &e.Tags, &e.DurationMin, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *painEventRepoPG) Create(ctx context.Context, e *PainEvent) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pain_event (id, subject_id, occurred_at, pain_score, fatigue,
			body_sites, tags, duration_min, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		e.ID, e.SubjectID, e.OccurredAt, e.PainScore, e.Fatigue,
		e.BodySites, e.Tags, e.DurationMin, e.Notes,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *painEventRepoPG) GetByID(ctx context.Context, subject string, id uuid.UUID) (*PainEvent, error) {
	e, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+painCols+` FROM pain_event WHERE id = $1 AND subject_id = $2`, id, subject))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r *painEventRepoPG) Update(ctx context.Context, e *PainEvent) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE pain_event SET occurred_at=$3, pain_score=$4, fatigue=$5, body_sites=$6,
			tags=$7, duration_min=$8, notes=$9, updated_at=NOW()
		WHERE id = $1 AND subject_id = $2
		RETURNING created_at, updated_at`,
		e.ID, e.SubjectID, e.OccurredAt, e.PainScore, e.Fatigue,
		e.BodySites, e.Tags, e.DurationMin, e.Notes,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return notFound(err)
}

func (r *painEventRepoPG) Delete(ctx context.Context, subject string, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx,
		`DELETE FROM pain_event WHERE id = $1 AND subject_id = $2`, id, subject))
}

func (r *painEventRepoPG) ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*PainEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM pain_event WHERE subject_id = $1`, subject).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+painCols+` FROM pain_event
		WHERE subject_id = $1 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`, subject, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, r.scan)
	return items, total, err
}

func (r *painEventRepoPG) ListInRange(ctx context.Context, subject string, tr TimeRange) ([]*PainEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+painCols+` FROM pain_event
		WHERE subject_id = $1 AND ($2::timestamptz IS NULL OR occurred_at >= $2) AND occurred_at < $3
		ORDER BY occurred_at DESC`, subject, tr.From, tr.To)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scan)
}

// =========== Hydration Log Repository ===========

type hydrationLogRepoPG struct{ pool *pgxpool.Pool }

func NewHydrationLogRepoPG(pool *pgxpool.Pool) HydrationLogRepository {
	return &hydrationLogRepoPG{pool: pool}
}

func (r *hydrationLogRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const hydrationCols = `id, subject_id, day, volume_liters, created_at, updated_at`

func (r *hydrationLogRepoPG) scan(row pgx.Row) (*HydrationLog, error) {
	var h HydrationLog
	var day time.Time
	err := row.Scan(&h.ID, &h.SubjectID, &day, &h.VolumeLiters, &h.CreatedAt, &h.UpdatedAt)
	h.Date = NewDate(day)
	return &h, err
}

func (r *hydrationLogRepoPG) Upsert(ctx context.Context, h *HydrationLog) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hydration_log (id, subject_id, day, volume_liters)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (subject_id, day)
		DO UPDATE SET volume_liters = EXCLUDED.volume_liters, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), h.SubjectID, h.Date.Time, h.VolumeLiters,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
}

func (r *hydrationLogRepoPG) GetByID(ctx context.Context, subject string, id uuid.UUID) (*HydrationLog, error) {
	h, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+hydrationCols+` FROM hydration_log WHERE id = $1 AND subject_id = $2`, id, subject))
	if err != nil {
		return nil, notFound(err)
	}
	return h, nil
}

func (r *hydrationLogRepoPG) Delete(ctx context.Context, subject string, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx,
		`DELETE FROM hydration_log WHERE id = $1 AND subject_id = $2`, id, subject))
}

func (r *hydrationLogRepoPG) ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*HydrationLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM hydration_log WHERE subject_id = $1`, subject).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hydrationCols+` FROM hydration_log
		WHERE subject_id = $1 ORDER BY day DESC LIMIT $2 OFFSET $3`, subject, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, r.scan)
	return items, total, err
}

func (r *hydrationLogRepoPG) ListInRange(ctx context.Context, subject string, tr TimeRange) ([]*HydrationLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hydrationCols+` FROM hydration_log
		WHERE subject_id = $1 AND ($2::date IS NULL OR day >= $2::date) AND day < $3::date
		ORDER BY day DESC`, subject, tr.From, tr.To)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scan)
}

// =========== Lab Result Repository ===========

type labResultRepoPG struct{ pool *pgxpool.Pool }

func NewLabResultRepoPG(pool *pgxpool.Pool) LabResultRepository {
	return &labResultRepoPG{pool: pool}
}

func (r *labResultRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const labCols = `id, subject_id, observed_at, analyte_code, analyte_name, value, unit,
	ref_low, ref_high, source, created_at, updated_at`

func (r *labResultRepoPG) scan(row pgx.Row) (*LabResult, error) {
	var l LabResult
	var low, high decimal.NullDecimal
	err := row.Scan(&l.ID, &l.SubjectID, &l.ObservedAt, &l.AnalyteCode, &l.AnalyteName,
		&l.Value, &l.Unit, &low, &high, &l.Source, &l.CreatedAt, &l.UpdatedAt)
	if low.Valid {
		l.RefLow = &low.Decimal
	}
	if high.Valid {
		l.RefHigh = &high.Decimal
	}
	return &l, err
}

func (r *labResultRepoPG) Create(ctx context.Context, l *LabResult) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_result (id, subject_id, observed_at, analyte_code, analyte_name,
			value, unit, ref_low, ref_high, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		l.ID, l.SubjectID, l.ObservedAt, l.AnalyteCode, l.AnalyteName,
		l.Value, l.Unit, l.RefLow, l.RefHigh, l.Source,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *labResultRepoPG) GetByID(ctx context.Context, subject string, id uuid.UUID) (*LabResult, error) {
	l, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+labCols+` FROM lab_result WHERE id = $1 AND subject_id = $2`, id, subject))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *labResultRepoPG) Update(ctx context.Context, l *LabResult) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_result SET observed_at=$3, analyte_code=$4, analyte_name=$5, value=$6,
			unit=$7, ref_low=$8, ref_high=$9, updated_at=NOW()
		WHERE id = $1 AND subject_id = $2
		RETURNING source, created_at, updated_at`,
		l.ID, l.SubjectID, l.ObservedAt, l.AnalyteCode, l.AnalyteName,
		l.Value, l.Unit, l.RefLow, l.RefHigh,
	).Scan(&l.Source, &l.CreatedAt, &l.UpdatedAt)
	return notFound(err)
}

func (r *labResultRepoPG) Delete(ctx context.Context, subject string, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx,
		`DELETE FROM lab_result WHERE id = $1 AND subject_id = $2`, id, subject))
}

func (r *labResultRepoPG) ListBySubject(ctx context.Context, subject, code string, limit, offset int) ([]*LabResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result
		WHERE subject_id = $1 AND ($2 = '' OR analyte_code = $2)`, subject, code).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+labCols+` FROM lab_result
		WHERE subject_id = $1 AND ($2 = '' OR analyte_code = $2)
		ORDER BY observed_at DESC LIMIT $3 OFFSET $4`, subject, code, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, r.scan)
	return items, total, err
}

func (r *labResultRepoPG) Recent(ctx context.Context, subject, code string, tr TimeRange, limit int) ([]*LabResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+labCols+` FROM lab_result
		WHERE subject_id = $1 AND analyte_code = $2
			AND ($3::timestamptz IS NULL OR observed_at >= $3) AND observed_at < $4
		ORDER BY observed_at DESC LIMIT $5`, subject, code, tr.From, tr.To, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, r.scan)
}

// =========== Subject Repository ===========

type subjectRepoPG struct{ pool *pgxpool.Pool }

func NewSubjectRepoPG(pool *pgxpool.Pool) SubjectRepository {
	return &subjectRepoPG{pool: pool}
}

func (r *subjectRepoPG) ActiveSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT subject_id FROM pain_event WHERE occurred_at >= $1
		UNION
		SELECT subject_id FROM hydration_log WHERE day >= $1::date
		UNION
		SELECT subject_id FROM lab_result WHERE observed_at >= $1
		ORDER BY subject_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
