package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palmerplus/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// exclusionViolation is the SQLSTATE raised by the (doctor_id, time range)
// exclusion constraint backstop.
const exclusionViolation = "23P01"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `a.id, a.doctor_id, a.doctor_label, a.patient_id, a.patient_name, a.patient_phone,
	p.short_id, a.title, a.notes, a.starts_at, a.ends_at, a.status, a.room, a.reminder_minutes,
	a.created_at, a.updated_at`

const apptFrom = ` FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.DoctorLabel, &a.PatientID, &a.PatientName, &a.PatientPhone,
		&a.PatientShortID, &a.Title, &a.Notes, &a.StartsAt, &a.EndsAt, &a.Status, &a.Room, &a.ReminderMinutes,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, doctor_label, patient_id, patient_name, patient_phone,
			title, notes, starts_at, ends_at, status, room, reminder_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.DoctorID, a.DoctorLabel, a.PatientID, a.PatientName, a.PatientPhone,
		a.Title, a.Notes, a.StartsAt, a.EndsAt, a.Status, a.Room, a.ReminderMinutes)
	return translateOverlap(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET doctor_id=$2, doctor_label=$3, patient_id=$4, patient_name=$5,
			patient_phone=$6, title=$7, notes=$8, starts_at=$9, ends_at=$10, status=$11,
			room=$12, reminder_minutes=$13, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.DoctorID, a.DoctorLabel, a.PatientID, a.PatientName,
		a.PatientPhone, a.Title, a.Notes, a.StartsAt, a.EndsAt, a.Status,
		a.Room, a.ReminderMinutes)
	if err != nil {
		return translateOverlap(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListRange(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + apptFrom + ` WHERE a.starts_at >= $1 AND a.starts_at < $2`
	args := []interface{}{f.From, f.To}
	idx := 3

	if f.DoctorID != "" {
		query += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(` AND (a.patient_name ILIKE $%d OR a.patient_phone ILIKE $%d OR a.title ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	switch f.Show {
	case ShowScheduled:
		query += ` AND a.status NOT IN ('done','cancelled')`
	case ShowDone:
		query += ` AND a.status = 'done'`
	case ShowUpcoming:
		query += fmt.Sprintf(` AND a.status IN ('scheduled','checked_in','in_progress') AND a.starts_at >= $%d`, idx)
		args = append(args, f.Now)
		idx++
	}

	query += ` ORDER BY a.starts_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListOverlapping(ctx context.Context, doctorID string, from, to time.Time, excludeID string) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + apptFrom + `
		WHERE a.doctor_id = $1 AND a.status <> 'cancelled'
			AND a.starts_at < $2 AND a.ends_at > $3`
	args := []interface{}{doctorID, to, from}
	if excludeID != "" {
		query += ` AND a.id <> $4`
		args = append(args, excludeID)
	}
	query += ` ORDER BY a.starts_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) DistinctDoctors(ctx context.Context) ([]DoctorChoice, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (doctor_id) doctor_id, doctor_label
		FROM appointments
		ORDER BY doctor_id ASC, updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DoctorChoice
	for rows.Next() {
		var c DoctorChoice
		if err := rows.Scan(&c.ID, &c.Label); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// translateOverlap maps a violation of the exclusion constraint on
// (doctor_id, time range) to the domain overlap error.
func translateOverlap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrOverlap
	}
	return err
}
