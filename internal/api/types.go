package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-availability/internal/appointment"
	"github.com/hackgods/booking-availability/internal/availability"
	"github.com/hackgods/booking-availability/internal/schedule"
)

type CreateAppointmentRequest struct {
	BusinessID      string  `json:"business_id"`
	ServiceID       string  `json:"service_id"`
	AppointmentDate string  `json:"appointment_date"`
	StartTime       string  `json:"start_time"`
	Notes           *string `json:"notes,omitempty"`
}

// RescheduleAppointmentRequest carries the fields to change; omitted fields stay as they are.
type RescheduleAppointmentRequest struct {
	AppointmentDate *string `json:"appointment_date,omitempty"`
	StartTime       *string `json:"start_time,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID              uuid.UUID      `json:"id"`
	BusinessID      uuid.UUID      `json:"business_id"`
	ServiceID       uuid.UUID      `json:"service_id"`
	ClientID        uuid.UUID      `json:"client_id"`
	AppointmentDate string         `json:"appointment_date"`
	StartTime       schedule.Clock `json:"start_time"`
	EndTime         schedule.Clock `json:"end_time"`
	Status          string         `json:"status"`
	Notes           *string        `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type DayAvailabilityResponse struct {
	Date      string                  `json:"date"`
	Available bool                    `json:"available"`
	TimeSlots []availability.TimeSlot `json:"timeSlots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		BusinessID:      a.BusinessID,
		ServiceID:       a.ServiceID,
		ClientID:        a.ClientID,
		AppointmentDate: schedule.FormatDate(a.Date),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toDayAvailabilityResponse(d availability.DayAvailability) DayAvailabilityResponse {
	slots := d.TimeSlots
	if slots == nil {
		slots = []availability.TimeSlot{}
	}
	return DayAvailabilityResponse{
		Date:      schedule.FormatDate(d.Date),
		Available: d.Available,
		TimeSlots: slots,
	}
}
