package scheduling

import (
	"context"
	"strings"
	"time"
)

// HasConflict reports whether the candidate interval overlaps any existing
// non-cancelled appointment for the doctor. The grace window widens the
// conflict window: the candidate is tested against
// [start - grace, end + grace), so bookings separated by less than the
// grace still collide, while a gap of at least the grace succeeds.
// excludeID skips one appointment when re-validating an edit against
// itself.
func (s *Service) HasConflict(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	if strings.TrimSpace(doctorID) == "" {
		return false, validationf("doctor_required", "doctor is required")
	}
	if !start.Before(end) {
		return false, validationf("invalid_time_range", "start must be before end")
	}
	overlapping, err := s.repo.ListOverlapping(ctx, doctorID, start.Add(-s.cfg.grace()), end.Add(s.cfg.grace()), excludeID)
	if err != nil {
		return false, err
	}
	return len(overlapping) > 0, nil
}

// AutoGenerateTimeSlot adds the given duration to a start time, falling
// back to the configured slot granularity.
func (s *Service) AutoGenerateTimeSlot(start time.Time, durationMinutes int) TimeSlot {
	if durationMinutes <= 0 {
		durationMinutes = s.cfg.SlotMinutes
	}
	return TimeSlot{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

// ConsecutiveSlots walks the slot grid forward from startTime and returns
// up to count free intervals for the doctor on the given day. The walk
// stops at the end of the calendar day, so a fully booked day returns
// fewer than count slots instead of looping.
func (s *Service) ConsecutiveSlots(ctx context.Context, doctorID, day, startTime string, count int) ([]TimeSlot, error) {
	if count <= 0 {
		return nil, validationf("invalid_count", "count must be positive")
	}
	base, err := parseDay(day)
	if err != nil {
		return nil, err
	}
	cursor, err := combineClock(base, startTime)
	if err != nil {
		return nil, err
	}

	step := s.cfg.slotDuration()
	dayEnd := base.AddDate(0, 0, 1)

	slots := make([]TimeSlot, 0, count)
	for len(slots) < count && !cursor.Add(step).After(dayEnd) {
		candidateEnd := cursor.Add(step)
		conflict, err := s.HasConflict(ctx, doctorID, cursor, candidateEnd, "")
		if err != nil {
			return nil, err
		}
		if !conflict {
			slots = append(slots, TimeSlot{Start: cursor, End: candidateEnd})
		}
		cursor = candidateEnd
	}
	return slots, nil
}

// ValidateTimeSlotOverlap exposes the conflict detector to API callers.
// An empty endTime defaults to one slot after startTime.
func (s *Service) ValidateTimeSlotOverlap(ctx context.Context, doctorID, day, startTime, endTime, excludeID string) (bool, error) {
	base, err := parseDay(day)
	if err != nil {
		return false, err
	}
	start, err := combineClock(base, startTime)
	if err != nil {
		return false, err
	}
	end := start.Add(s.cfg.slotDuration())
	if endTime != "" {
		end, err = combineClock(base, endTime)
		if err != nil {
			return false, err
		}
	}
	return s.HasConflict(ctx, doctorID, start, end, excludeID)
}
