package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/app"
	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// ListingService is the minimal interface needed by the listing endpoints.
type ListingService interface {
	CreateListing(ctx context.Context, in app.CreateListingInput) (domain.Listing, error)
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	ListListings(ctx context.Context) ([]domain.Listing, error)
}

// HandleListings returns an HTTP handler for listing creation/listing.
func HandleListings(svc ListingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listings, err := svc.ListListings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			resp := make([]listingResponse, 0, len(listings))
			for _, l := range listings {
				resp = append(resp, toListingResponse(l))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createListingRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			unitPrice, err := decimal.NewFromString(req.UnitPrice)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidPrice, "invalid unit_price format")
				return
			}

			listing, err := svc.CreateListing(r.Context(), app.CreateListingInput{
				Name:      req.Name,
				UnitPrice: unitPrice,
				Available: req.Available,
			})
			if err != nil {
				writeListingError(w, err)
				return
			}

			writeJSON(w, http.StatusCreated, toListingResponse(listing))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleGetListing returns an HTTP handler for GET /listings/{id}.
func HandleGetListing(svc ListingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseListingPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		listing, err := svc.GetListing(r.Context(), id)
		if err != nil {
			writeListingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(listing))
	}
}

func parseListingPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "listings" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeListingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrListingNameRequired):
		writeError(w, http.StatusBadRequest, codeListingNameRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrListingNotFound):
		writeError(w, http.StatusNotFound, codeListingNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type createListingRequest struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Available int    `json:"available"`
}

type listingResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UnitPrice string    `json:"unit_price"`
	Available int       `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ID:        l.ID,
		Name:      l.Name,
		UnitPrice: l.UnitPrice.String(),
		Available: l.Available,
		CreatedAt: l.CreatedAt,
	}
}
