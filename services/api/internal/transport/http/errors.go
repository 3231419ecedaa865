package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidQuantity     = "invalid_quantity"
	codeInvalidPrice        = "invalid_price"
	codeListingNameRequired = "listing_name_required"
	codeListingNotFound     = "listing_not_found"
	codeOrderNotFound       = "order_not_found"
	codeOrderNotPending     = "order_not_pending"
	codeInsufficientStock   = "insufficient_stock"
	codeUnsupportedToken    = "unsupported_token"
	codeAmountInUse         = "amount_in_use"
	codeCertNotFound        = "certificate_not_found"
	codeCertRevoked         = "certificate_revoked"
	codeHolderRequired      = "holder_required"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
