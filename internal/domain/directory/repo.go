package directory

import "context"

// PatientRepository provides access to the patients table.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, query string, limit int) ([]*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

// DoctorRepository provides access to the doctors table.
type DoctorRepository interface {
	Upsert(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	List(ctx context.Context) ([]*Doctor, error)
	SetColor(ctx context.Context, id, color string) error
}
