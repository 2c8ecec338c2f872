package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/pkg/apperr"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.FullName) == "" {
		return apperr.Validation("full_name is required")
	}
	if strings.TrimSpace(d.Email) == "" {
		return apperr.Validation("email is required")
	}
	d.Active = true
	if err := s.doctors.Create(ctx, d); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("a doctor with email %s already exists", d.Email)
		}
		return err
	}
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("doctor %s not found", id)
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, params map[string]string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, params, limit, offset)
}

// SetDoctorActive flips the active flag. Deactivated doctors keep their
// history but stop accepting new bookings.
func (s *Service) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Active = active
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return apperr.Validation("full_name is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return apperr.Validation("email is required")
	}
	p.Active = true
	if err := s.patients.Create(ctx, p); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("a patient with email %s already exists", p.Email)
		}
		return err
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("patient %s not found", id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, params, limit, offset)
}

func (s *Service) SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*Patient, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Active = active
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
