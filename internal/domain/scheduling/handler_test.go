package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestServer(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e, svc
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const createBody = `{"doctor_id":"dr-lina","day":"2024-01-15","start_time":"09:00","title":"Checkup","actor_id":"reception-1"}`

func TestHandler_CreateAppointment(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload Record
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if payload.ID == "" || payload.DoctorLabel != "Dr. Lina" {
		t.Errorf("unexpected record: %+v", payload)
	}
	if payload.TimeLabel != "09:00 - 09:30" {
		t.Errorf("unexpected time_label: %s", payload.TimeLabel)
	}
}

func TestHandler_CreateConflictMapsTo409(t *testing.T) {
	e, _ := newTestServer(t)

	if rec := doJSON(e, http.MethodPost, "/api/v1/appointments", createBody); rec.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d", rec.Code)
	}
	rec := doJSON(e, http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-lina","day":"2024-01-15","start_time":"09:15","end_time":"09:45","title":"Clash"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_CreateValidationMapsTo400(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-lina","day":"2024-01-15","start_time":"09:00"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "title_required") {
		t.Errorf("expected reason code in body, got %s", rec.Body.String())
	}
}

func TestHandler_GetMissingMapsTo404(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/appointments/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_UpdateStatus(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)
	var created Record
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(e, http.MethodPatch, "/api/v1/appointments/"+created.ID+"/status", `{"status":"checked_in"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPatch, "/api/v1/appointments/"+created.ID+"/status", `{"status":"confirmed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestHandler_DeleteLifecycle(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)
	var created Record
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(e, http.MethodDelete, "/api/v1/appointments/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodDelete, "/api/v1/appointments/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestHandler_ListWithCounts(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)
	doJSON(e, http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-omar","day":"2024-01-15","start_time":"10:00","title":"Cleaning"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/appointments?day=2024-01-15&show=all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Appointments []Record       `json:"appointments"`
		StatusCounts map[string]int `json:"status_counts"`
		Total        int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if payload.Total != 2 || len(payload.Appointments) != 2 {
		t.Errorf("expected 2 appointments, got %+v", payload)
	}
	if payload.StatusCounts["scheduled"] != 2 {
		t.Errorf("expected 2 scheduled, got %+v", payload.StatusCounts)
	}
}

func TestHandler_ListInvertedRangeMapsTo400(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/appointments?day=2024-01-15&end_day=2024-01-10", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_MultiDoctorSchedule(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)

	rec := doJSON(e, http.MethodGet, "/api/v1/schedule?day=2024-01-15&show=all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var schedules []DoctorSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &schedules); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("expected 2 doctor columns, got %d", len(schedules))
	}
}

func TestHandler_ValidateSlot(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/v1/appointments", createBody)

	rec := doJSON(e, http.MethodPost, "/api/v1/slots/validate",
		`{"doctor_id":"dr-lina","day":"2024-01-15","start_time":"09:15","end_time":"09:45"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if !payload["conflict"] {
		t.Error("expected conflict true")
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/slots/validate",
		`{"doctor_id":"dr-lina","day":"2024-01-15","start_time":"12:00","end_time":"12:30"}`)
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["conflict"] {
		t.Error("expected conflict false")
	}
}

func TestHandler_ConsecutiveSlots(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/slots/consecutive?doctor=dr-lina&day=2024-01-15&start=09:00&count=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload []struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(payload) != 3 || payload[0].Label != "09:00 - 09:30" {
		t.Errorf("unexpected slots: %+v", payload)
	}
}

func TestHandler_DoctorChoices(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/doctors/choices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var choices []DoctorChoice
	if err := json.Unmarshal(rec.Body.Bytes(), &choices); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(choices) != 2 {
		t.Errorf("expected 2 choices, got %d", len(choices))
	}
}
