package reminders

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type appointmentSourcePG struct {
	pool *pgxpool.Pool
}

func NewAppointmentSourcePG(pool *pgxpool.Pool) AppointmentSource {
	return &appointmentSourcePG{pool: pool}
}

func (r *appointmentSourcePG) Appointment(ctx context.Context, id uuid.UUID) (*AppointmentInfo, error) {
	var (
		info   AppointmentInfo
		status string
		phone  *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT a.id, a.start_time, a.end_time, a.status,
			d.full_name, p.full_name, p.email, p.phone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1`, id).
		Scan(&info.ID, &info.StartTime, &info.EndTime, &status,
			&info.DoctorName, &info.PatientName, &info.PatientEmail, &phone)
	if err != nil {
		return nil, err
	}
	info.Scheduled = status == "scheduled"
	if phone != nil {
		info.PatientPhone = *phone
	}
	return &info, nil
}
