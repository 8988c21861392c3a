package api

import (
	"net/http"
	"time"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
)

const defaultSlotWindow = 7 * 24 * time.Hour

func generateSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var req GenerateSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		day, err := time.ParseInLocation(time.DateOnly, req.Date, svc.Resolver().Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.GenerateDaySlots(r.Context(), actor, doctorID, day)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponses(slots))
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		from, err := timeParam(r.URL.Query().Get("from"), time.Now().Truncate(24*time.Hour))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := timeParam(r.URL.Query().Get("to"), from.Add(defaultSlotWindow))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		slots, err := svc.ListSlots(r.Context(), actor, doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func setSlotAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var req SlotAvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}

		n, err := svc.OverrideAvailability(r.Context(), actor, doctorID, parseUUIDs(req.SlotIDs), *req.Available)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Affected: n})
	}
}

func deleteSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var req DeleteSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		n, err := svc.DeleteSlots(r.Context(), actor, doctorID, parseUUIDs(req.SlotIDs))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Affected: n})
	}
}

// availableSlotsHandler serves ?date=YYYY-MM-DD for one clinic day or
// ?from=RFC3339 for everything after; with neither it lists from now.
func availableSlotsHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}
		q := r.URL.Query()

		var (
			slots []booking.Slot
			err   error
		)
		if date := q.Get("date"); date != "" {
			day, perr := time.ParseInLocation(time.DateOnly, date, resolver.Location())
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			slots, err = resolver.AvailableSlotsOn(r.Context(), doctorID, day)
		} else {
			from, perr := timeParam(q.Get("from"), time.Time{})
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
			slots, err = resolver.AvailableSlots(r.Context(), doctorID, from)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func availableDatesHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		dates, err := resolver.AvailableDates(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AvailableDatesResponse{
			DoctorID: doctorID,
			Timezone: resolver.Location().String(),
			Dates:    make([]string, 0, len(dates)),
		}
		for _, d := range dates {
			resp.Dates = append(resp.Dates, d.In(resolver.Location()).Format(time.DateOnly))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func timeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}
