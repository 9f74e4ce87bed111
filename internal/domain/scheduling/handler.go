package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.List)
	api.POST("/appointments", h.Create)
	api.GET("/appointments/groups", h.ListGrouped)
	api.GET("/appointments/:id", h.Get)
	api.PUT("/appointments/:id", h.Update)
	api.PATCH("/appointments/:id/status", h.UpdateStatus)
	api.DELETE("/appointments/:id", h.Delete)
	api.GET("/schedule", h.MultiDoctorSchedule)
	api.GET("/date-cards", h.DateCards)
	api.GET("/doctors/choices", h.DoctorChoices)
	api.GET("/slots/consecutive", h.ConsecutiveSlots)
	api.POST("/slots/validate", h.ValidateSlot)
}

type appointmentRequest struct {
	AppointmentInput
	ActorID string `json:"actor_id"`
}

func (h *Handler) Create(c echo.Context) error {
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.CreateAppointment(c.Request().Context(), req.AppointmentInput, req.ActorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt.Record())
}

func (h *Handler) Get(c echo.Context) error {
	appt, err := h.svc.GetAppointmentByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt.Record())
}

func (h *Handler) Update(c echo.Context) error {
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.UpdateAppointment(c.Request().Context(), c.Param("id"), req.AppointmentInput, req.ActorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt.Record())
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), body.Status); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.DeleteAppointment(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	day, endDay, err := h.daySpan(c)
	if err != nil {
		return httpError(err)
	}
	appts, err := h.svc.ListForDay(c.Request().Context(), day, endDay,
		doctorParam(c), c.QueryParam("q"), c.QueryParam("show"))
	if err != nil {
		return httpError(err)
	}

	counts := make(map[string]int)
	for _, a := range appts {
		counts[string(a.Status)]++
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appointments":  Records(appts),
		"status_counts": counts,
		"total":         len(appts),
	})
}

func (h *Handler) ListGrouped(c echo.Context) error {
	day, endDay, err := h.daySpan(c)
	if err != nil {
		return httpError(err)
	}
	groups, err := h.svc.GroupedByPatient(c.Request().Context(), day, endDay,
		doctorParam(c), c.QueryParam("q"), c.QueryParam("show"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) MultiDoctorSchedule(c echo.Context) error {
	day, endDay, err := h.daySpan(c)
	if err != nil {
		return httpError(err)
	}
	schedules, err := h.svc.MultiDoctorSchedule(c.Request().Context(), day, endDay,
		c.QueryParam("q"), c.QueryParam("show"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, schedules)
}

func (h *Handler) DateCards(c echo.Context) error {
	day, endDay, err := h.daySpan(c)
	if err != nil {
		return httpError(err)
	}
	cards, err := h.svc.DateCardsForRange(c.Request().Context(), day, endDay, doctorParam(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cards)
}

func (h *Handler) DoctorChoices(c echo.Context) error {
	choices, err := h.svc.DoctorChoices(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, choices)
}

func (h *Handler) ConsecutiveSlots(c echo.Context) error {
	count, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil || count <= 0 {
		count = 1
	}
	slots, err := h.svc.ConsecutiveSlots(c.Request().Context(),
		c.QueryParam("doctor"), c.QueryParam("day"), c.QueryParam("start"), count)
	if err != nil {
		return httpError(err)
	}
	type slotPayload struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Label string `json:"label"`
	}
	payload := make([]slotPayload, 0, len(slots))
	for _, sl := range slots {
		payload = append(payload, slotPayload{
			Start: sl.Start.Format(timestampLayout),
			End:   sl.End.Format(timestampLayout),
			Label: sl.Label(),
		})
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) ValidateSlot(c echo.Context) error {
	var body struct {
		DoctorID  string `json:"doctor_id"`
		Day       string `json:"day"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		ExcludeID string `json:"exclude_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conflict, err := h.svc.ValidateTimeSlotOverlap(c.Request().Context(),
		body.DoctorID, body.Day, body.StartTime, body.EndTime, body.ExcludeID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"conflict": conflict})
}

// daySpan resolves the day/end_day/range query parameters. The day
// defaults to today; a range preset overrides end_day.
func (h *Handler) daySpan(c echo.Context) (string, string, error) {
	day := c.QueryParam("day")
	if day == "" {
		day = time.Now().Format(dayLayout)
	}
	endDay := c.QueryParam("end_day")
	if key := c.QueryParam("range"); key != "" {
		return h.svc.ResolveRange(day, key)
	}
	return day, endDay, nil
}

func doctorParam(c echo.Context) string {
	doctor := c.QueryParam("doctor")
	if doctor == "all" {
		return ""
	}
	return doctor
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
			"code":  verr.Code,
			"error": verr.Message,
		})
	case errors.Is(err, ErrOverlap), errors.Is(err, ErrLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
