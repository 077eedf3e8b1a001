package api

import (
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

type UploadAvailabilityRequest struct {
	Date string `json:"date"`
}

type AvailabilityResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Caregiver     string `json:"caregiver"`
	Date          string `json:"date"`
}

type AddDosesRequest struct {
	Count *int `json:"count"`
}

type VaccineResponse struct {
	Name  string `json:"name"`
	Doses int    `json:"doses"`
}

type ReserveRequest struct {
	Date    string `json:"date"`
	Vaccine string `json:"vaccine"`
}

type ReservationResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Caregiver     string `json:"caregiver"`
	Date          string `json:"date"`
	Vaccine       string `json:"vaccine"`
}

type CancellationResponse struct {
	AppointmentID    int64  `json:"appointment_id"`
	VaccineRestocked bool   `json:"vaccine_restocked"`
	Vaccine          string `json:"vaccine,omitempty"`
}

type AppointmentResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Caregiver     string `json:"caregiver"`
	Date          string `json:"date"`
	Patient       string `json:"patient,omitempty"`
	Vaccine       string `json:"vaccine,omitempty"`
}

type ScheduleResponse struct {
	Date       string            `json:"date"`
	Caregivers []string          `json:"caregivers"`
	Vaccines   []VaccineResponse `json:"vaccines"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toVaccineResponses(vs []scheduling.Vaccine) []VaccineResponse {
	out := make([]VaccineResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, VaccineResponse{Name: v.Name, Doses: v.Doses})
	}
	return out
}

func toAppointmentResponse(s scheduling.Slot) AppointmentResponse {
	resp := AppointmentResponse{
		AppointmentID: s.ID,
		Caregiver:     s.Caregiver,
		Date:          scheduling.FormatDate(s.Date),
	}
	if s.Patient != nil {
		resp.Patient = *s.Patient
	}
	if s.Vaccine != nil {
		resp.Vaccine = *s.Vaccine
	}
	return resp
}
