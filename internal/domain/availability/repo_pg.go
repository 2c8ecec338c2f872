package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

const windowCols = `id, doctor_id, start_time, end_time, created_at, updated_at`

func (r *windowRepoPG) scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	err := row.Scan(&w.ID, &w.DoctorID, &w.StartTime, &w.EndTime, &w.CreatedAt, &w.UpdatedAt)
	return &w, err
}

func (r *windowRepoPG) Create(ctx context.Context, w *AvailabilityWindow) error {
	w.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, doctor_id, start_time, end_time)
		VALUES ($1,$2,$3,$4)`,
		w.ID, w.DoctorID, w.StartTime, w.EndTime)
	return err
}

func (r *windowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	return r.scanWindow(r.pool.QueryRow(ctx, `SELECT `+windowCols+` FROM availability_windows WHERE id = $1`, id))
}

func (r *windowRepoPG) Update(ctx context.Context, w *AvailabilityWindow) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE availability_windows SET start_time=$2, end_time=$3, updated_at=NOW()
		WHERE id = $1`,
		w.ID, w.StartTime, w.EndTime)
	return err
}

func (r *windowRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	return err
}

func (r *windowRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*AvailabilityWindow, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM availability_windows
		WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2`,
		doctorID, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowCols+` FROM availability_windows
		WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC LIMIT $4 OFFSET $5`,
		doctorID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AvailabilityWindow
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	return items, total, nil
}

func (r *windowRepoPG) ListOverlapping(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowCols+` FROM availability_windows
		WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC`,
		doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityWindow
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, nil
}
