package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/booking-availability/internal/appointment"
	"github.com/hackgods/booking-availability/internal/auth"
	"github.com/hackgods/booking-availability/internal/schedule"
)

func dayAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, ok := uuidParam(w, r, "businessID", "invalid_business_id")
		if !ok {
			return
		}

		date, err := schedule.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		serviceID, ok := optionalServiceID(w, r)
		if !ok {
			return
		}

		day, err := svc.Availability(r.Context(), businessID, date, serviceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayAvailabilityResponse(day))
	}
}

func rangeAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, ok := uuidParam(w, r, "businessID", "invalid_business_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		start, err := schedule.ParseDate(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
			return
		}
		end, err := schedule.ParseDate(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
			return
		}

		serviceID, ok := optionalServiceID(w, r)
		if !ok {
			return
		}

		days, err := svc.AvailabilityRange(r.Context(), businessID, start, end, serviceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]DayAvailabilityResponse, 0, len(days))
		for _, d := range days {
			resp = append(resp, toDayAvailabilityResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		businessID, err := uuid.Parse(req.BusinessID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_business_id", "business_id must be a valid UUID")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		date, err := schedule.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", err.Error())
			return
		}

		start, err := schedule.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actor, appointment.CreateRequest{
			BusinessID: businessID,
			ServiceID:  serviceID,
			Date:       date,
			StartTime:  start,
			Notes:      req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), actor, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listClientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		appts, page, err := svc.ListAppointmentsByClient(r.Context(), actor, pageParams(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(appts, page))
	}
}

func listBusinessAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		businessID, ok := uuidParam(w, r, "businessID", "invalid_business_id")
		if !ok {
			return
		}
		appts, page, err := svc.ListAppointmentsByBusiness(r.Context(), actor, businessID, pageParams(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(appts, page))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var change appointment.RescheduleRequest
		if req.AppointmentDate != nil {
			date, err := schedule.ParseDate(*req.AppointmentDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_date", err.Error())
				return
			}
			change.Date = &date
		}
		if req.StartTime != nil {
			start, err := schedule.ParseClock(*req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
				return
			}
			change.StartTime = &start
		}
		change.Notes = req.Notes

		appt, err := svc.RescheduleAppointment(r.Context(), actor, id, change)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), actor, id, req.Status)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.CancelByClient(r.Context(), actor, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrBusinessNotFound):
		writeError(w, http.StatusNotFound, "business_not_found", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrBusinessInactive):
		writeError(w, http.StatusConflict, "business_inactive", err.Error())
	case errors.Is(err, appointment.ErrServiceInactive):
		writeError(w, http.StatusConflict, "service_inactive", err.Error())
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrBookingConflict):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.Is(err, appointment.ErrDayBusy):
		writeError(w, http.StatusConflict, "day_busy", "another booking for this day is in progress, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "invalid_status", err.Error())
	case errors.Is(err, appointment.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, appointment.ErrOutsideBusinessHours):
		writeError(w, http.StatusUnprocessableEntity, "outside_business_hours", err.Error())
	case errors.Is(err, appointment.ErrPastAppointment):
		writeError(w, http.StatusUnprocessableEntity, "past_appointment", err.Error())
	case errors.Is(err, appointment.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func actorFromRequest(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return appointment.Actor{}, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return appointment.Actor{}, false
	}
	return appointment.Actor{UserID: userID}, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalServiceID(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("service_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return nil, false
	}
	return &id, true
}

// pageParams reads limit and offset as given; the service applies defaults and caps.
func pageParams(r *http.Request) appointment.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return appointment.Page{Limit: limit, Offset: offset}
}

func toListResponse(appts []appointment.Appointment, page appointment.Page) AppointmentListResponse {
	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(appts)),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
	}
	return resp
}
