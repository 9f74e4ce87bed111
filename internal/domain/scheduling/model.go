package scheduling

import (
	"fmt"
	"sort"
	"time"
)

const (
	// timestampLayout is the wire format for starts_at/ends_at. The first
	// ten characters are the calendar day, characters 11-16 the clock time.
	timestampLayout = "2006-01-02T15:04:05"
	dayLayout       = "2006-01-02"
	clockLayout     = "15:04"
)

// Status is the appointment lifecycle state. Transitions are not ordered;
// any status may move to any other.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusNoShow     Status = "no_show"
	StatusCancelled  Status = "cancelled"
)

// statusOrder ranks statuses for selecting a patient's primary appointment
// among duplicates. Lower ranks win.
var statusOrder = map[Status]int{
	StatusScheduled:  0,
	StatusCheckedIn:  1,
	StatusInProgress: 2,
	StatusDone:       3,
	StatusNoShow:     4,
	StatusCancelled:  5,
}

func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Priority returns the fixed ordering rank. Unknown statuses sort last.
func (s Status) Priority() int {
	if p, ok := statusOrder[s]; ok {
		return p
	}
	return 10
}

// ParseStatus validates a status string from an external caller.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", &ValidationError{Code: "invalid_status", Message: fmt.Sprintf("unrecognized status %q", raw)}
	}
	return s, nil
}

// ShowMode selects which statuses a listing query includes.
type ShowMode string

const (
	// ShowScheduled returns everything not yet terminal: it excludes only
	// done and cancelled appointments.
	ShowScheduled ShowMode = "scheduled"
	ShowDone      ShowMode = "done"
	ShowAll       ShowMode = "all"
	// ShowUpcoming returns non-terminal appointments from now forward.
	ShowUpcoming ShowMode = "upcoming"
)

// ParseShowMode resolves a show parameter, defaulting to ShowScheduled.
func ParseShowMode(raw string) (ShowMode, error) {
	switch ShowMode(raw) {
	case "":
		return ShowScheduled, nil
	case ShowScheduled, ShowDone, ShowAll, ShowUpcoming:
		return ShowMode(raw), nil
	}
	return "", &ValidationError{Code: "invalid_show_mode", Message: fmt.Sprintf("unrecognized show mode %q", raw)}
}

// Appointment maps to the appointments table. Patient and doctor display
// fields are snapshots taken at booking time; they do not follow later
// edits to the referenced records.
type Appointment struct {
	ID              string    `db:"id" json:"id"`
	DoctorID        string    `db:"doctor_id" json:"doctor_id"`
	DoctorLabel     string    `db:"doctor_label" json:"doctor_label"`
	PatientID       *string   `db:"patient_id" json:"patient_id,omitempty"`
	PatientName     *string   `db:"patient_name" json:"patient_name,omitempty"`
	PatientPhone    *string   `db:"patient_phone" json:"patient_phone,omitempty"`
	PatientShortID  *string   `db:"patient_short_id" json:"patient_short_id,omitempty"`
	Title           string    `db:"title" json:"title"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	StartsAt        time.Time `db:"starts_at" json:"starts_at"`
	EndsAt          time.Time `db:"ends_at" json:"ends_at"`
	Status          Status    `db:"status" json:"status"`
	Room            *string   `db:"room" json:"room,omitempty"`
	ReminderMinutes *int      `db:"reminder_minutes" json:"reminder_minutes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TimeSlot is a bookable interval on a doctor's calendar.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Label renders the slot as "09:00 - 09:30".
func (t TimeSlot) Label() string {
	return FormatTimeRange(t.Start, t.End)
}

// FormatTimeRange renders a human-readable clock range.
func FormatTimeRange(start, end time.Time) string {
	return start.Format(clockLayout) + " - " + end.Format(clockLayout)
}

// Record is the flat appointment mapping handed to API callers.
type Record struct {
	ID             string  `json:"id"`
	PatientID      *string `json:"patient_id"`
	PatientName    *string `json:"patient_name"`
	PatientPhone   *string `json:"patient_phone"`
	PatientShortID *string `json:"patient_short_id"`
	DoctorID       string  `json:"doctor_id"`
	DoctorLabel    string  `json:"doctor_label"`
	Title          string  `json:"title"`
	Notes          *string `json:"notes"`
	StartsAt       string  `json:"starts_at"`
	EndsAt         string  `json:"ends_at"`
	Status         Status  `json:"status"`
	TimeLabel      string  `json:"time_label"`
}

// Record flattens the appointment for output.
func (a *Appointment) Record() Record {
	return Record{
		ID:             a.ID,
		PatientID:      a.PatientID,
		PatientName:    a.PatientName,
		PatientPhone:   a.PatientPhone,
		PatientShortID: a.PatientShortID,
		DoctorID:       a.DoctorID,
		DoctorLabel:    a.DoctorLabel,
		Title:          a.Title,
		Notes:          a.Notes,
		StartsAt:       a.StartsAt.Format(timestampLayout),
		EndsAt:         a.EndsAt.Format(timestampLayout),
		Status:         a.Status,
		TimeLabel:      FormatTimeRange(a.StartsAt, a.EndsAt),
	}
}

func Records(appts []*Appointment) []Record {
	out := make([]Record, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Record())
	}
	return out
}

// DoctorChoice is one entry of the bookable-doctor list.
type DoctorChoice struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Color *string `json:"color,omitempty"`
}

// PatientGroup buckets a patient's appointments in a range. The selected
// appointment is the one with the lowest status rank, earliest start
// breaking ties.
type PatientGroup struct {
	PatientID      *string  `json:"patient_id"`
	PatientName    string   `json:"patient_name"`
	PatientPhone   *string  `json:"patient_phone"`
	PatientShortID *string  `json:"patient_short_id"`
	DoctorLabel    string   `json:"doctor_label"`
	Selected       Record   `json:"selected"`
	TimeDisplay    string   `json:"time_display"`
	ExtraCount     int      `json:"extra_count"`
	Appointments   []Record `json:"appointments"`
}

// GroupByPatient buckets appointments by patient id, anonymous bookings
// by name+phone. Groups come back ordered by their selected appointment's
// start time.
func GroupByPatient(appts []*Appointment) []PatientGroup {
	type bucket struct {
		key   string
		appts []*Appointment
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, a := range appts {
		key := ""
		if a.PatientID != nil && *a.PatientID != "" {
			key = *a.PatientID
		} else {
			key = "anon:" + strOrEmpty(a.PatientName) + ":" + strOrEmpty(a.PatientPhone)
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
			order = append(order, key)
		}
		b.appts = append(b.appts, a)
	}

	groups := make([]PatientGroup, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		sort.SliceStable(b.appts, func(i, j int) bool {
			return b.appts[i].StartsAt.Before(b.appts[j].StartsAt)
		})
		selected := b.appts[0]
		for _, a := range b.appts[1:] {
			if a.Status.Priority() < selected.Status.Priority() ||
				(a.Status.Priority() == selected.Status.Priority() && a.StartsAt.Before(selected.StartsAt)) {
				selected = a
			}
		}
		name := strOrEmpty(selected.PatientName)
		if name == "" {
			name = "—"
		}
		groups = append(groups, PatientGroup{
			PatientID:      selected.PatientID,
			PatientName:    name,
			PatientPhone:   selected.PatientPhone,
			PatientShortID: selected.PatientShortID,
			DoctorLabel:    selected.DoctorLabel,
			Selected:       selected.Record(),
			TimeDisplay:    FormatTimeRange(selected.StartsAt, selected.EndsAt),
			ExtraCount:     len(b.appts) - 1,
			Appointments:   Records(b.appts),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Selected.StartsAt < groups[j].Selected.StartsAt
	})
	return groups
}

// DateCard summarizes one calendar day of a range listing.
type DateCard struct {
	Date           string   `json:"date"`
	Display        string   `json:"display"`
	ScheduledCount int      `json:"scheduled_count"`
	DoneCount      int      `json:"done_count"`
	TotalCount     int      `json:"total_count"`
	IsToday        bool     `json:"is_today"`
	Appointments   []Record `json:"appointments"`
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
