package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// CertificateService is the minimal interface needed by the certificate
// endpoints.
type CertificateService interface {
	GetByCode(ctx context.Context, code string) (domain.Certificate, error)
	ListByHolder(ctx context.Context, holderRef string) ([]domain.Certificate, error)
	Revoke(ctx context.Context, code string) error
}

// HandleListCertificates returns an HTTP handler for
// GET /certificates?holder=<ref>.
func HandleListCertificates(svc CertificateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		holder := r.URL.Query().Get("holder")
		if holder == "" {
			writeError(w, http.StatusBadRequest, codeHolderRequired, "holder query parameter is required")
			return
		}

		certs, err := svc.ListByHolder(r.Context(), holder)
		if err != nil {
			writeCertificateError(w, err)
			return
		}
		resp := make([]certificateResponse, 0, len(certs))
		for _, c := range certs {
			resp = append(resp, toCertificateResponse(c))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleCertificateActions serves GET /certificates/{code} for public
// verification and POST /certificates/{code}/revoke for operators.
func HandleCertificateActions(svc CertificateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, action, ok := parseCertificatePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			cert, err := svc.GetByCode(r.Context(), code)
			if err != nil {
				writeCertificateError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toCertificateResponse(cert))
		case "revoke":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			if err := svc.Revoke(r.Context(), code); err != nil {
				writeCertificateError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, revokeCertificateResponse{
				Code:   code,
				Status: string(domain.CertificateStatusRevoked),
			})
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseCertificatePath(path string) (code, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "certificates" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

func writeCertificateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrCertificateNotFound):
		writeError(w, http.StatusNotFound, codeCertNotFound, err.Error())
	case errors.Is(err, domain.ErrCertificateRevoked):
		writeError(w, http.StatusConflict, codeCertRevoked, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type revokeCertificateResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

type certificateResponse struct {
	Code      string    `json:"code"`
	OrderID   string    `json:"order_id"`
	HolderRef string    `json:"holder_ref"`
	Quantity  int       `json:"quantity"`
	ProofTxID string    `json:"proof_tx_id"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issued_at"`
}

func toCertificateResponse(c domain.Certificate) certificateResponse {
	return certificateResponse{
		Code:      c.Code,
		OrderID:   c.OrderID,
		HolderRef: c.HolderRef,
		Quantity:  c.Quantity,
		ProofTxID: c.ProofTxID,
		Status:    string(c.Status),
		IssuedAt:  c.IssuedAt,
	}
}
