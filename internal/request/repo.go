package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"timesheet/internal/attendance"
	"timesheet/internal/store"
)

const requestColumns = `id, user_id, attendance_date, applicant, submitted_date, target_date,
	original_clock_in, original_clock_out, original_break,
	updated_clock_in, updated_clock_out, updated_break,
	comment, status, created_at, updated_at`

// Repository persists correction requests in Postgres, sharing the database
// with the attendance records it mutates.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns one request by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*CorrectionRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM correction_requests WHERE id = $1
	`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// List returns every request (administrator view), newest submissions first.
func (r *Repository) List(ctx context.Context) ([]CorrectionRequest, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+` FROM correction_requests
		ORDER BY submitted_date DESC, created_at DESC
	`)
}

// ListByUser returns one employee's requests, newest submissions first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]CorrectionRequest, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+` FROM correction_requests
		WHERE user_id = $1
		ORDER BY submitted_date DESC, created_at DESC
	`, userID)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]CorrectionRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []CorrectionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *req)
	}
	return res, rows.Err()
}

// GetAttendance reads the attendance record a submission targets.
func (r *Repository) GetAttendance(ctx context.Context, userID, date string) (*attendance.Record, error) {
	return attendance.NewRepository(r.db).Get(ctx, userID, date)
}

// CreateWithPending inserts the request and marks its attendance record
// pending in one transaction. The partial unique index on unhandled requests
// turns a double submission into ErrDuplicatePending.
func (r *Repository) CreateWithPending(ctx context.Context, req CorrectionRequest) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO correction_requests (id, user_id, attendance_date, applicant, submitted_date, target_date,
				original_clock_in, original_clock_out, original_break,
				updated_clock_in, updated_clock_out, updated_break,
				comment, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, req.ID, req.UserID, req.AttendanceDate, req.Applicant, req.Date, req.TargetDate,
			req.Original.ClockIn, req.Original.ClockOut, req.Original.BreakTime,
			req.Updated.ClockIn, req.Updated.ClockOut, req.Updated.BreakTime,
			req.Comment, req.Status)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicatePending
			}
			return fmt.Errorf("insert request: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE attendance_records SET status = $2, updated_at = NOW() WHERE id = $1
		`, attendance.RecordID(req.UserID, req.AttendanceDate), attendance.StatusPending)
		if err != nil {
			return fmt.Errorf("mark record pending: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Decide moves an unhandled request to newStatus and applies rec to its
// attendance record, all in one transaction. The status guard lives in the
// UPDATE predicate, so a concurrent decision loses with ErrInvalidTransition
// instead of double-applying.
func (r *Repository) Decide(ctx context.Context, id string, newStatus Status, rec attendance.Record) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE correction_requests SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`, id, newStatus, StatusUnhandled)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return r.transitionFailure(ctx, tx, id)
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE attendance_records
			SET clock_in = $2, clock_out = $3, break_time = $4, work_time = $5, over_time = $6,
				status = $7, updated_at = NOW()
			WHERE id = $1
		`, attendance.RecordID(rec.UserID, rec.Date), rec.ClockIn, rec.ClockOut,
			rec.BreakTime, rec.WorkTime, rec.OverTime, rec.Status)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Reopen moves a handled request back to unhandled and re-marks the
// attendance record pending. Field values stay untouched. The partial unique
// index rejects the reopen while a newer unhandled request holds the same
// (user, date) slot.
func (r *Repository) Reopen(ctx context.Context, id string) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var userID, date string
		err := tx.QueryRowContext(ctx, `
			UPDATE correction_requests SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status IN ($3, $4)
			RETURNING user_id, attendance_date
		`, id, StatusUnhandled, StatusApproved, StatusRejected).Scan(&userID, &date)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.transitionFailure(ctx, tx, id)
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicatePending
			}
			return fmt.Errorf("reopen request: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE attendance_records SET status = $2, updated_at = NOW() WHERE id = $1
		`, attendance.RecordID(userID, date), attendance.StatusPending)
		if err != nil {
			return fmt.Errorf("mark record pending: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// transitionFailure distinguishes a missing request from a status guard miss.
func (r *Repository) transitionFailure(ctx context.Context, tx *sql.Tx, id string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM correction_requests WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*CorrectionRequest, error) {
	var req CorrectionRequest
	if err := row.Scan(&req.ID, &req.UserID, &req.AttendanceDate, &req.Applicant, &req.Date, &req.TargetDate,
		&req.Original.ClockIn, &req.Original.ClockOut, &req.Original.BreakTime,
		&req.Updated.ClockIn, &req.Updated.ClockOut, &req.Updated.BreakTime,
		&req.Comment, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	return &req, nil
}
