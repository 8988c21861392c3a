package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
)

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID := actor.UserID
		if req.PatientID != "" {
			patientID = uuid.MustParse(req.PatientID)
		}

		appt, err := svc.Book(r.Context(), actor, booking.BookingRequest{
			SlotID:    uuid.MustParse(req.SlotID),
			PatientID: patientID,
			DoctorID:  uuid.MustParse(req.DoctorID),
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		q := r.URL.Query()

		limit, err := intParam(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		offset, err := intParam(q.Get("offset"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		var appts []booking.Appointment
		switch {
		case q.Get("doctor_id") != "":
			doctorID, err := uuid.Parse(q.Get("doctor_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			appts, err = svc.ListForDoctor(r.Context(), actor, doctorID, limit, offset)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
		case q.Get("patient_id") != "":
			patientID, err := uuid.Parse(q.Get("patient_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListForPatient(r.Context(), actor, patientID, limit, offset)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
		case actor.Role == booking.RoleDoctor:
			appts, err = svc.ListForDoctor(r.Context(), actor, actor.UserID, limit, offset)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
		case actor.Role == booking.RolePatient:
			appts, err = svc.ListForPatient(r.Context(), actor, actor.UserID, limit, offset)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

type appointmentAction func(svc *booking.Service, r *http.Request, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error)

func confirmAppointment(svc *booking.Service, r *http.Request, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
	return svc.Confirm(r.Context(), actor, id)
}

func completeAppointment(svc *booking.Service, r *http.Request, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
	return svc.Complete(r.Context(), actor, id)
}

func cancelAppointment(svc *booking.Service, r *http.Request, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
	return svc.Cancel(r.Context(), actor, id)
}

func appointmentActionHandler(svc *booking.Service, action appointmentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := action(svc, r, actor, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func urlUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
