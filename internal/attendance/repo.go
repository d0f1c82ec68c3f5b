package attendance

import (
	"context"
	"database/sql"
	"errors"
)

const recordColumns = `id, user_id, date, clock_in, clock_out, break_time, work_time, over_time, status, comment, created_at, updated_at`

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the record for one user and date, or nil when absent.
func (r *Repository) Get(ctx context.Context, userID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records WHERE id = $1
	`, RecordID(userID, date))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Upsert writes a record, creating it on first clock-in.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, user_id, date, clock_in, clock_out, break_time, work_time, over_time, status, comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			clock_in = EXCLUDED.clock_in,
			clock_out = EXCLUDED.clock_out,
			break_time = EXCLUDED.break_time,
			work_time = EXCLUDED.work_time,
			over_time = EXCLUDED.over_time,
			status = EXCLUDED.status,
			comment = EXCLUDED.comment,
			updated_at = NOW()
	`, RecordID(rec.UserID, rec.Date), rec.UserID, rec.Date, rec.ClockIn, rec.ClockOut,
		rec.BreakTime, rec.WorkTime, rec.OverTime, rec.Status, rec.Comment)
	return err
}

// ListByUser returns every record for a user ordered by date descending.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE user_id = $1
		ORDER BY date DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// Settings returns the user's standard shift length in minutes.
// found is false when the user never saved settings.
func (r *Repository) Settings(ctx context.Context, userID string) (minutes int, found bool, err error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT regular_work_minutes FROM user_settings WHERE user_id = $1
	`, userID)
	if err := row.Scan(&minutes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return minutes, true, nil
}

// SaveSettings stores the user's standard shift length.
func (r *Repository) SaveSettings(ctx context.Context, userID string, minutes int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, regular_work_minutes)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			regular_work_minutes = EXCLUDED.regular_work_minutes,
			updated_at = NOW()
	`, userID, minutes)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Date, &rec.ClockIn, &rec.ClockOut,
		&rec.BreakTime, &rec.WorkTime, &rec.OverTime, &rec.Status, &rec.Comment,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
