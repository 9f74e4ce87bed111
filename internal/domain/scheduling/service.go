package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/palmerplus/clinic/internal/platform/lock"
)

const (
	lockTTL        = 10 * time.Second
	lockAttempts   = 20
	lockRetryDelay = 50 * time.Millisecond
)

// SlotConfig is the process-wide scheduling configuration, constructed once
// at startup and passed in explicitly. The same settings apply to every
// doctor.
type SlotConfig struct {
	SlotMinutes  int
	GraceMinutes int
}

func (c SlotConfig) slotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

func (c SlotConfig) grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// PatientInfo is the read-only patient view the scheduler snapshots onto
// appointments at booking time.
type PatientInfo struct {
	ID      string
	Name    string
	Phone   *string
	ShortID *string
}

// PatientDirectory is the patient lookup collaborator. Lookup returns
// (nil, nil) when the id is unknown.
type PatientDirectory interface {
	Lookup(ctx context.Context, id string) (*PatientInfo, error)
}

// DoctorInfo is one entry of the doctor registry.
type DoctorInfo struct {
	ID    string
	Label string
	Color *string
}

// DoctorDirectory is the doctor registry collaborator. Lookup returns
// (nil, nil) when the id is unknown.
type DoctorDirectory interface {
	List(ctx context.Context) ([]DoctorInfo, error)
	Lookup(ctx context.Context, id string) (*DoctorInfo, error)
}

// TxRunner executes fn inside one atomic transaction boundary. The
// production runner wraps db.WithSerializable over the pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo     AppointmentRepository
	patients PatientDirectory
	doctors  DoctorDirectory
	locker   lock.Locker
	cfg      SlotConfig
	inTx     TxRunner
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo AppointmentRepository, patients PatientDirectory, doctors DoctorDirectory,
	locker lock.Locker, cfg SlotConfig, inTx TxRunner, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		locker:   locker,
		cfg:      cfg,
		inTx:     inTx,
		log:      log,
		now:      time.Now,
	}
}

// AppointmentInput carries caller-supplied booking fields. Day is
// YYYY-MM-DD, times are HH:MM combined with the day. On update, empty
// fields keep their prior values.
type AppointmentInput struct {
	DoctorID        string `json:"doctor_id"`
	Day             string `json:"day"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	Title           string `json:"title"`
	Notes           string `json:"notes"`
	Status          string `json:"status"`
	Room            string `json:"room"`
	ReminderMinutes *int   `json:"reminder_minutes"`
}

// -- Booking operations --

func (s *Service) CreateAppointment(ctx context.Context, in AppointmentInput, actorID string) (*Appointment, error) {
	if strings.TrimSpace(in.DoctorID) == "" {
		return nil, validationf("doctor_required", "doctor is required")
	}
	day, err := parseDay(in.Day)
	if err != nil {
		return nil, err
	}
	if in.StartTime == "" {
		return nil, validationf("start_time_required", "start time is required")
	}
	start, err := combineClock(day, in.StartTime)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationf("title_required", "title is required")
	}

	end := start.Add(s.cfg.slotDuration())
	if in.EndTime != "" {
		end, err = combineClock(day, in.EndTime)
		if err != nil {
			return nil, err
		}
	}
	if !start.Before(end) {
		return nil, validationf("end_before_start", "end time must be after start time")
	}

	doctor, err := s.doctors.Lookup(ctx, in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor %s: %w", in.DoctorID, err)
	}
	if doctor == nil {
		return nil, validationf("unknown_doctor", "doctor %s is not registered", in.DoctorID)
	}

	status := StatusScheduled
	if in.Status != "" {
		status, err = ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
	}

	appt := &Appointment{
		DoctorID:        in.DoctorID,
		DoctorLabel:     doctor.Label,
		Title:           title,
		Notes:           optional(in.Notes),
		StartsAt:        start,
		EndsAt:          end,
		Status:          status,
		Room:            optional(in.Room),
		ReminderMinutes: in.ReminderMinutes,
	}
	if err := s.snapshotPatient(ctx, appt, in); err != nil {
		return nil, err
	}

	err = s.withDoctorLock(ctx, in.DoctorID, func(ctx context.Context) error {
		return s.inTx(ctx, func(ctx context.Context) error {
			conflict, err := s.HasConflict(ctx, appt.DoctorID, appt.StartsAt, appt.EndsAt, "")
			if err != nil {
				return err
			}
			if conflict {
				return ErrOverlap
			}
			return s.repo.Create(ctx, appt)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID).
		Str("doctor_id", appt.DoctorID).
		Str("actor_id", actorID).
		Time("starts_at", appt.StartsAt).
		Msg("appointment created")
	return appt, nil
}

func (s *Service) UpdateAppointment(ctx context.Context, id string, in AppointmentInput, actorID string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.DoctorID != "" && in.DoctorID != appt.DoctorID {
		doctor, err := s.doctors.Lookup(ctx, in.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("resolve doctor %s: %w", in.DoctorID, err)
		}
		if doctor == nil {
			return nil, validationf("unknown_doctor", "doctor %s is not registered", in.DoctorID)
		}
		appt.DoctorID = in.DoctorID
		appt.DoctorLabel = doctor.Label
	}

	if err := s.applyTimes(appt, in); err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		appt.Title = title
	}
	if in.Notes != "" {
		appt.Notes = optional(in.Notes)
	}
	if in.Room != "" {
		appt.Room = optional(in.Room)
	}
	if in.ReminderMinutes != nil {
		appt.ReminderMinutes = in.ReminderMinutes
	}
	if in.Status != "" {
		status, err := ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		appt.Status = status
	}
	if in.PatientID != "" || in.PatientName != "" {
		appt.PatientID = nil
		appt.PatientName = nil
		appt.PatientPhone = nil
		appt.PatientShortID = nil
		if err := s.snapshotPatient(ctx, appt, in); err != nil {
			return nil, err
		}
	}

	err = s.withDoctorLock(ctx, appt.DoctorID, func(ctx context.Context) error {
		return s.inTx(ctx, func(ctx context.Context) error {
			conflict, err := s.HasConflict(ctx, appt.DoctorID, appt.StartsAt, appt.EndsAt, appt.ID)
			if err != nil {
				return err
			}
			if conflict {
				return ErrOverlap
			}
			return s.repo.Update(ctx, appt)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID).
		Str("actor_id", actorID).
		Msg("appointment updated")
	return appt, nil
}

// UpdateStatus changes the lifecycle state. Status changes never need
// overlap validation.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus string) error {
	status, err := ParseStatus(newStatus)
	if err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

func (s *Service) DeleteAppointment(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// -- Listings --

// ListForDay returns appointments whose start falls within
// [startDay, endDay] inclusive, ordered by start time ascending. An empty
// endDay means the single startDay.
func (s *Service) ListForDay(ctx context.Context, startDay, endDay, doctorID, search, show string) ([]*Appointment, error) {
	from, to, err := s.parseDaySpan(startDay, endDay)
	if err != nil {
		return nil, err
	}
	showMode, err := ParseShowMode(show)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRange(ctx, ListFilter{
		From:     from,
		To:       to,
		DoctorID: doctorID,
		Search:   strings.TrimSpace(search),
		Show:     showMode,
		Now:      s.now(),
	})
}

// rangePresets maps a range key to its day span relative to the base day.
var rangePresets = map[string]int{
	"yesterday": -1,
	"today":     0,
	"tomorrow":  1,
	"next3":     3,
	"next7":     7,
}

// ResolveRange expands a range preset key into a start/end day pair.
// Unknown keys fall back to "today"; "all" spans the full archive.
func (s *Service) ResolveRange(day, key string) (string, string, error) {
	if key == "all" {
		return "2000-01-01", "2030-12-31", nil
	}
	base, err := parseDay(day)
	if err != nil {
		return "", "", err
	}
	span, ok := rangePresets[key]
	if !ok {
		span = 0
	}
	switch {
	case span < 0:
		d := base.AddDate(0, 0, span).Format(dayLayout)
		return d, d, nil
	case span == 0:
		d := base.Format(dayLayout)
		return d, d, nil
	default:
		return base.Format(dayLayout), base.AddDate(0, 0, span).Format(dayLayout), nil
	}
}

// DoctorChoices returns the bookable doctors in configuration order, then
// every doctor seen in historical appointments but no longer registered.
func (s *Service) DoctorChoices(ctx context.Context) ([]DoctorChoice, error) {
	registered, err := s.doctors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	choices := make([]DoctorChoice, 0, len(registered))
	seen := make(map[string]bool, len(registered))
	for _, d := range registered {
		choices = append(choices, DoctorChoice{ID: d.ID, Label: d.Label, Color: d.Color})
		seen[d.ID] = true
	}

	historical, err := s.repo.DistinctDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list historical doctors: %w", err)
	}
	for _, c := range historical {
		if !seen[c.ID] {
			choices = append(choices, c)
			seen[c.ID] = true
		}
	}
	return choices, nil
}

// DoctorSchedule is one column of the multi-doctor view.
type DoctorSchedule struct {
	DoctorID     string   `json:"doctor_id"`
	DoctorLabel  string   `json:"doctor_label"`
	Color        *string  `json:"color,omitempty"`
	Appointments []Record `json:"appointments"`
}

// MultiDoctorSchedule builds the per-doctor grouped, time-ordered view for
// a date range. Doctors with no matching appointments still get an empty
// column.
func (s *Service) MultiDoctorSchedule(ctx context.Context, startDay, endDay, search, show string) ([]DoctorSchedule, error) {
	choices, err := s.DoctorChoices(ctx)
	if err != nil {
		return nil, err
	}
	appts, err := s.ListForDay(ctx, startDay, endDay, "", search, show)
	if err != nil {
		return nil, err
	}

	byDoctor := make(map[string][]Record)
	for _, a := range appts {
		byDoctor[a.DoctorID] = append(byDoctor[a.DoctorID], a.Record())
	}

	schedules := make([]DoctorSchedule, 0, len(choices))
	for _, c := range choices {
		records := byDoctor[c.ID]
		if records == nil {
			records = []Record{}
		}
		schedules = append(schedules, DoctorSchedule{
			DoctorID:     c.ID,
			DoctorLabel:  c.Label,
			Color:        c.Color,
			Appointments: records,
		})
	}
	return schedules, nil
}

// DateCardsForRange produces one summary card per calendar day that has
// appointments in [startDay, endDay]. An empty range yields an empty list;
// only an inverted range is an error.
func (s *Service) DateCardsForRange(ctx context.Context, startDay, endDay, doctorID string) ([]DateCard, error) {
	from, to, err := s.parseDaySpan(startDay, endDay)
	if err != nil {
		return nil, err
	}
	appts, err := s.repo.ListRange(ctx, ListFilter{
		From:     from,
		To:       to,
		DoctorID: doctorID,
		Show:     ShowAll,
	})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]*Appointment)
	var keys []string
	for _, a := range appts {
		key := a.StartsAt.Format(dayLayout)
		if _, ok := byDate[key]; !ok {
			keys = append(keys, key)
		}
		byDate[key] = append(byDate[key], a)
	}
	sort.Strings(keys)

	today := s.now().Format(dayLayout)
	cards := make([]DateCard, 0, len(keys))
	for _, key := range keys {
		group := byDate[key]
		card := DateCard{
			Date:         key,
			Display:      s.dateDisplay(key),
			TotalCount:   len(group),
			IsToday:      key == today,
			Appointments: Records(group),
		}
		for _, a := range group {
			switch a.Status {
			case StatusScheduled:
				card.ScheduledCount++
			case StatusDone:
				card.DoneCount++
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// GroupedByPatient buckets a range listing per patient for the table view.
func (s *Service) GroupedByPatient(ctx context.Context, startDay, endDay, doctorID, search, show string) ([]PatientGroup, error) {
	appts, err := s.ListForDay(ctx, startDay, endDay, doctorID, search, show)
	if err != nil {
		return nil, err
	}
	return GroupByPatient(appts), nil
}

// -- internals --

func (s *Service) snapshotPatient(ctx context.Context, appt *Appointment, in AppointmentInput) error {
	if in.PatientID != "" {
		info, err := s.patients.Lookup(ctx, in.PatientID)
		if err != nil {
			return fmt.Errorf("resolve patient %s: %w", in.PatientID, err)
		}
		if info == nil {
			return validationf("unknown_patient", "patient %s does not exist", in.PatientID)
		}
		appt.PatientID = &info.ID
		appt.PatientName = &info.Name
		appt.PatientPhone = info.Phone
		appt.PatientShortID = info.ShortID
		return nil
	}
	appt.PatientName = optional(in.PatientName)
	appt.PatientPhone = optional(in.PatientPhone)
	return nil
}

// applyTimes recomputes the interval from any supplied day/start/end
// fields, keeping the prior day, clock time and duration as defaults.
func (s *Service) applyTimes(appt *Appointment, in AppointmentInput) error {
	if in.Day == "" && in.StartTime == "" && in.EndTime == "" {
		return nil
	}

	day := truncateToDay(appt.StartsAt)
	if in.Day != "" {
		parsed, err := parseDay(in.Day)
		if err != nil {
			return err
		}
		day = parsed
	}

	start := day.Add(clockOffset(appt.StartsAt))
	if in.StartTime != "" {
		parsed, err := combineClock(day, in.StartTime)
		if err != nil {
			return err
		}
		start = parsed
	}

	end := start.Add(appt.EndsAt.Sub(appt.StartsAt))
	if in.EndTime != "" {
		parsed, err := combineClock(day, in.EndTime)
		if err != nil {
			return err
		}
		end = parsed
	}
	if !start.Before(end) {
		return validationf("end_before_start", "end time must be after start time")
	}

	appt.StartsAt = start
	appt.EndsAt = end
	return nil
}

func (s *Service) withDoctorLock(ctx context.Context, doctorID string, fn func(ctx context.Context) error) error {
	key := "doctor:" + doctorID
	acquired := false
	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := s.locker.Lock(ctx, key, lockTTL)
		if err != nil {
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !acquired {
		return ErrLocked
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("release doctor lock")
		}
	}()
	return fn(ctx)
}

func (s *Service) parseDaySpan(startDay, endDay string) (time.Time, time.Time, error) {
	start, err := parseDay(startDay)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := start
	if endDay != "" {
		end, err = parseDay(endDay)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, validationf("invalid_range", "end day %s is before start day %s", endDay, startDay)
	}
	return start, end.AddDate(0, 0, 1), nil
}

func (s *Service) dateDisplay(dayKey string) string {
	d, err := time.Parse(dayLayout, dayKey)
	if err != nil {
		return dayKey
	}
	today := truncateToDay(s.now())
	switch dayKey {
	case today.Format(dayLayout):
		return "Today"
	case today.AddDate(0, 0, -1).Format(dayLayout):
		return "Yesterday"
	case today.AddDate(0, 0, 1).Format(dayLayout):
		return "Tomorrow"
	}
	return d.Format("Monday, January 2, 2006")
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, validationf("day_required", "day is required")
	}
	day, err := time.Parse(dayLayout, raw)
	if err != nil {
		return time.Time{}, validationf("invalid_day", "day %q is not YYYY-MM-DD", raw)
	}
	return day, nil
}

func combineClock(day time.Time, raw string) (time.Time, error) {
	clock, err := time.Parse(clockLayout, raw)
	if err != nil {
		return time.Time{}, validationf("invalid_time", "time %q is not HH:MM", raw)
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clockOffset(t time.Time) time.Duration {
	return t.Sub(truncateToDay(t))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
