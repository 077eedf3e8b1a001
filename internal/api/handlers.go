package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

// SchedulingService is the part of scheduling.Service the HTTP layer calls.
type SchedulingService interface {
	UploadAvailability(ctx context.Context, actor scheduling.Actor, date time.Time) (scheduling.Slot, error)
	AddDoses(ctx context.Context, actor scheduling.Actor, vaccine string, count int) (scheduling.Vaccine, error)
	Reserve(ctx context.Context, actor scheduling.Actor, date time.Time, vaccine string) (scheduling.Reservation, error)
	Cancel(ctx context.Context, actor scheduling.Actor, id int64) (scheduling.Cancellation, error)
	ListAppointments(ctx context.Context, actor scheduling.Actor) ([]scheduling.Slot, error)
	SearchSchedule(ctx context.Context, actor scheduling.Actor, date time.Time) (scheduling.Schedule, error)
	ListVaccines(ctx context.Context) ([]scheduling.Vaccine, error)
}

func uploadAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UploadAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "could not parse JSON")
			return
		}

		date, err := scheduling.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
			return
		}

		slot, err := svc.UploadAvailability(r.Context(), ActorFrom(r.Context()), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, AvailabilityResponse{
			AppointmentID: slot.ID,
			Caregiver:     slot.Caregiver,
			Date:          scheduling.FormatDate(slot.Date),
		})
	}
}

func addDosesHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddDosesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "could not parse JSON")
			return
		}
		if req.Count == nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "count is required")
			return
		}

		v, err := svc.AddDoses(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "name"), *req.Count)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, VaccineResponse{Name: v.Name, Doses: v.Doses})
	}
}

func listVaccinesHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vs, err := svc.ListVaccines(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVaccineResponses(vs))
	}
}

func searchScheduleHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := scheduling.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
			return
		}

		sched, err := svc.SearchSchedule(r.Context(), ActorFrom(r.Context()), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		caregivers := sched.Caregivers
		if caregivers == nil {
			caregivers = []string{}
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:       scheduling.FormatDate(sched.Date),
			Caregivers: caregivers,
			Vaccines:   toVaccineResponses(sched.Vaccines),
		})
	}
}

func reserveHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "could not parse JSON")
			return
		}

		date, err := scheduling.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
			return
		}

		res, err := svc.Reserve(r.Context(), ActorFrom(r.Context()), date, req.Vaccine)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ReservationResponse{
			AppointmentID: res.AppointmentID,
			Caregiver:     res.Caregiver,
			Date:          scheduling.FormatDate(res.Date),
			Vaccine:       res.Vaccine,
		})
	}
}

func cancelHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "id must be a positive integer")
			return
		}

		c, err := svc.Cancel(r.Context(), ActorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancellationResponse{
			AppointmentID:    c.AppointmentID,
			VaccineRestocked: c.Vaccine != "",
			Vaccine:          c.Vaccine,
		})
	}
}

func listAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListAppointments(r.Context(), ActorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toAppointmentResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduling.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, scheduling.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, scheduling.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduling.ErrConflict),
		errors.Is(err, scheduling.ErrAlreadyBooked):
		return http.StatusConflict
	case errors.Is(err, scheduling.ErrNoAvailability),
		errors.Is(err, scheduling.ErrVaccineUnavailable),
		errors.Is(err, scheduling.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduling.ErrBusy),
		errors.Is(err, scheduling.ErrAllocationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError never echoes err itself: storage errors carry driver
// details.
func handleServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), scheduling.Code(err), scheduling.Message(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
