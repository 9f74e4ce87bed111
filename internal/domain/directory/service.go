package directory

import (
	"context"
	"fmt"
	"strings"
)

const searchLimit = 10

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
}

func NewService(patients PatientRepository, doctors DoctorRepository) *Service {
	return &Service{patients: patients, doctors: doctors}
}

// SyncDoctors upserts the configured doctor labels into the registry,
// preserving list order as position. Doctors already persisted but absent
// from the list are left untouched so historical appointments keep a label.
func (s *Service) SyncDoctors(ctx context.Context, labels []string) error {
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		d := &Doctor{ID: Slugify(label), Label: label, Position: i}
		if err := s.doctors.Upsert(ctx, d); err != nil {
			return fmt.Errorf("sync doctor %q: %w", label, err)
		}
	}
	return nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.List(ctx)
}

// DoctorColors returns the color assignments keyed by doctor id. Doctors
// without an assigned color are omitted.
func (s *Service) DoctorColors(ctx context.Context) (map[string]string, error) {
	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	colors := make(map[string]string)
	for _, d := range doctors {
		if d.Color != nil && *d.Color != "" {
			colors[d.ID] = *d.Color
		}
	}
	return colors, nil
}

func (s *Service) SetDoctorColor(ctx context.Context, id, color string) error {
	return s.doctors.SetColor(ctx, id, color)
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.patients.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, total, nil
}

// SearchPatients matches the query against name, file number and phone.
// Queries shorter than two characters return an empty result instead of
// scanning the whole table.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []*Patient{}, nil
	}
	return s.patients.Search(ctx, query, searchLimit)
}
