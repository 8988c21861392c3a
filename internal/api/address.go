package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-slot-booking/internal/address"
)

type AddressLookup interface {
	Lookup(ctx context.Context, zip string) (address.Address, error)
}

// lookupAddressHandler never blocks a booking: failures come back as
// recoverable 4xx/502 responses and the client leaves the fields blank.
func lookupAddressHandler(lookup AddressLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := lookup.Lookup(r.Context(), chi.URLParam(r, "zip"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAddressResponse(addr))
	}
}
