package scheduling

import (
	"context"
	"time"
)

// ListFilter narrows a range listing. From is inclusive, To exclusive.
type ListFilter struct {
	From     time.Time
	To       time.Time
	DoctorID string
	Search   string
	Show     ShowMode
	Now      time.Time // reference point for ShowUpcoming
}

// AppointmentRepository provides access to the appointments table.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	ListRange(ctx context.Context, f ListFilter) ([]*Appointment, error)
	// ListOverlapping returns non-cancelled appointments for the doctor
	// whose [starts_at, ends_at) interval intersects [from, to), excluding
	// excludeID when non-empty.
	ListOverlapping(ctx context.Context, doctorID string, from, to time.Time, excludeID string) ([]*Appointment, error)
	// DistinctDoctors returns every doctor id seen in historical
	// appointments with its most recent denormalized label.
	DistinctDoctors(ctx context.Context) ([]DoctorChoice, error)
}
