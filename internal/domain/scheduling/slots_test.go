package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHasConflict_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	start := ts(t, "2024-01-15T09:00:00")

	_, err := svc.HasConflict(ctx, "", start, start.Add(30*time.Minute), "")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != "doctor_required" {
		t.Fatalf("expected doctor_required, got %v", err)
	}

	_, err = svc.HasConflict(ctx, "dr-lina", start, start, "")
	if !errors.As(err, &verr) || verr.Code != "invalid_time_range" {
		t.Fatalf("expected invalid_time_range, got %v", err)
	}
}

func TestHasConflict_GraceWidening(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "dr-lina", "2024-01-15", "09:00", "09:30")

	cases := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"direct overlap", "09:15:00", "09:45:00", true},
		{"adjacent within grace", "09:30:00", "10:00:00", true},
		{"outside grace", "09:36:00", "10:06:00", false},
		{"before, outside grace", "08:00:00", "08:30:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.HasConflict(ctx, "dr-lina",
				ts(t, "2024-01-15T"+tc.start), ts(t, "2024-01-15T"+tc.end), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAutoGenerateTimeSlot(t *testing.T) {
	svc, _ := newTestService(t)
	start := ts(t, "2024-01-15T09:00:00")

	slot := svc.AutoGenerateTimeSlot(start, 0)
	if got := slot.End.Sub(slot.Start); got != 30*time.Minute {
		t.Errorf("expected default slot duration, got %v", got)
	}

	slot = svc.AutoGenerateTimeSlot(start, 45)
	if got := slot.End.Sub(slot.Start); got != 45*time.Minute {
		t.Errorf("expected 45m duration, got %v", got)
	}
}

func TestConsecutiveSlots_EmptyDay(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.ConsecutiveSlots(context.Background(), "dr-lina", "2024-01-15", "09:00", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := []string{"09:00 - 09:30", "09:30 - 10:00", "10:00 - 10:30"}
	for i, slot := range slots {
		if slot.Label() != want[i] {
			t.Errorf("slot %d: got %s, want %s", i, slot.Label(), want[i])
		}
		if i > 0 && !slots[i-1].End.Equal(slot.Start) {
			t.Errorf("slot %d not contiguous", i)
		}
	}
}

func TestConsecutiveSlots_SkipsBookedAndGrace(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "dr-lina", "2024-01-15", "10:00", "10:30")

	slots, err := svc.ConsecutiveSlots(context.Background(), "dr-lina", "2024-01-15", "09:00", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 09:30 and 10:30 fall inside the widened window of the booking,
	// so the next free slots after 09:00 are 11:00 and 11:30.
	want := []string{"09:00 - 09:30", "11:00 - 11:30", "11:30 - 12:00"}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for i, slot := range slots {
		if slot.Label() != want[i] {
			t.Errorf("slot %d: got %s, want %s", i, slot.Label(), want[i])
		}
	}
}

func TestConsecutiveSlots_BoundedByDayEnd(t *testing.T) {
	svc, _ := newTestService(t)

	slots, err := svc.ConsecutiveSlots(context.Background(), "dr-lina", "2024-01-15", "23:00", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected walk bounded at midnight with 2 slots, got %d", len(slots))
	}
}

func TestConsecutiveSlots_InvalidCount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ConsecutiveSlots(context.Background(), "dr-lina", "2024-01-15", "09:00", 0)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != "invalid_count" {
		t.Fatalf("expected invalid_count, got %v", err)
	}
}

func TestValidateTimeSlotOverlap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	appt := mustCreate(t, svc, "dr-lina", "2024-01-15", "09:00", "09:30")

	conflict, err := svc.ValidateTimeSlotOverlap(ctx, "dr-lina", "2024-01-15", "09:15", "09:45", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conflict {
		t.Error("expected conflict")
	}

	// Excluding the appointment itself clears the conflict.
	conflict, err = svc.ValidateTimeSlotOverlap(ctx, "dr-lina", "2024-01-15", "09:00", "09:30", appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflict {
		t.Error("expected no conflict against itself")
	}

	// Empty end time defaults to one slot.
	conflict, err = svc.ValidateTimeSlotOverlap(ctx, "dr-lina", "2024-01-15", "12:00", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflict {
		t.Error("expected free slot at 12:00")
	}
}
