package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentCols = "id, doctor_id, patient_id, start_time, end_time, status, notes, created_at, updated_at"

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartTime, &a.EndTime,
		&a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InTx opens a serializable transaction so the overlap re-test and the
// insert observe a single snapshot even under concurrent bookings.
func (r *appointmentRepoPG) InTx(ctx context.Context, fn func(tx BookingTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&bookingTxPG{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentCols + ` FROM appointments WHERE id = $1`
	return scanAppointment(r.pool.QueryRow(ctx, query, id))
}

func (r *appointmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + appointmentCols + ` FROM appointments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointments WHERE 1=1`
	args := []any{}
	idx := 1

	if v, ok := params["doctor_id"]; ok && v != "" {
		cond := fmt.Sprintf(` AND doctor_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, v)
		idx++
	}
	if v, ok := params["patient_id"]; ok && v != "" {
		cond := fmt.Sprintf(` AND patient_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, v)
		idx++
	}
	if v, ok := params["status"]; ok && v != "" {
		cond := fmt.Sprintf(` AND status = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, v)
		idx++
	}
	if v, ok := params["from"]; ok && v != "" {
		cond := fmt.Sprintf(` AND start_time >= $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, v)
		idx++
	}
	if v, ok := params["to"]; ok && v != "" {
		cond := fmt.Sprintf(` AND start_time < $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, v)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	appointments := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		appointments = append(appointments, a)
	}
	return appointments, total, rows.Err()
}

func (r *appointmentRepoPG) AggregateByStatus(ctx context.Context, params map[string]string) ([]StatusAggregate, error) {
	query := `SELECT status, COUNT(*),
		COALESCE(SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 3600.0), 0)
		FROM appointments WHERE 1=1`
	args := []any{}
	idx := 1

	if v, ok := params["doctor_id"]; ok && v != "" {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, v)
		idx++
	}
	if v, ok := params["from"]; ok && v != "" {
		query += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, v)
		idx++
	}
	if v, ok := params["to"]; ok && v != "" {
		query += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, v)
		idx++
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggregates := []StatusAggregate{}
	for rows.Next() {
		var agg StatusAggregate
		if err := rows.Scan(&agg.Status, &agg.Count, &agg.Hours); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

type bookingTxPG struct {
	tx pgx.Tx
}

func (t *bookingTxPG) DoctorActive(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1 AND active)`, doctorID).Scan(&ok)
	return ok, err
}

func (t *bookingTxPG) PatientActive(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1 AND active)`, patientID).Scan(&ok)
	return ok, err
}

func (t *bookingTxPG) AnyAvailabilityOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM availability_windows
			WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2)`,
		doctorID, start, end).Scan(&ok)
	return ok, err
}

func (t *bookingTxPG) LockScheduledOverlaps(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id FROM appointments
			WHERE doctor_id = $1 AND status = 'scheduled'
			AND start_time < $3 AND end_time > $2 AND id <> $4
			FOR UPDATE`,
		doctorID, start, end, excludeID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		locked++
	}
	return locked, rows.Err()
}

func (t *bookingTxPG) AnyScheduledOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND status = 'scheduled'
			AND start_time < $3 AND end_time > $2 AND id <> $4)`,
		doctorID, start, end, excludeID).Scan(&ok)
	return ok, err
}

func (t *bookingTxPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentCols + ` FROM appointments WHERE id = $1 FOR UPDATE`
	return scanAppointment(t.tx.QueryRow(ctx, query, id))
}

func (t *bookingTxPG) Insert(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return t.tx.QueryRow(ctx,
		`INSERT INTO appointments (id, doctor_id, patient_id, start_time, end_time, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.StartTime, a.EndTime, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (t *bookingTxPG) Update(ctx context.Context, a *Appointment) error {
	return t.tx.QueryRow(ctx,
		`UPDATE appointments
			SET start_time = $2, end_time = $3, status = $4, notes = $5, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
		a.ID, a.StartTime, a.EndTime, a.Status, a.Notes,
	).Scan(&a.UpdatedAt)
}
