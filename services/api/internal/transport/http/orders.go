package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/veridion/carbon-market/services/api/internal/app"
	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// OrderService is the minimal interface needed by the order endpoints.
type OrderService interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// PaymentWatcher registers and drops server-side payment watches. Satisfied
// by recon.Watcher.
type PaymentWatcher interface {
	Watch(order domain.Order)
	Cancel(orderID string)
	CheckNow(ctx context.Context, orderID string) (bool, error)
}

// HandleCreateOrder returns an HTTP handler for placing orders. The created
// order is registered with the watcher before the response is written, so
// reconciliation starts even if the client never polls.
func HandleCreateOrder(svc OrderService, watcher PaymentWatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeOrderError(w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			ListingID:   req.ListingID,
			BuyerEmail:  req.BuyerEmail,
			Quantity:    req.Quantity,
			TokenSymbol: req.TokenSymbol,
		})
		if err != nil {
			writeOrderError(w, err)
			return
		}

		watcher.Watch(order)

		writeJSON(w, http.StatusCreated, toOrderResponse(order))
	}
}

// HandleOrderActions serves the order subtree: GET /orders/{id},
// POST /orders/{id}/cancel and POST /orders/{id}/check.
func HandleOrderActions(svc OrderService, watcher PaymentWatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, action, ok := parseOrderPath(r.URL.Path)
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
			order, err := svc.GetOrder(r.Context(), orderID)
			if err != nil {
				writeOrderError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toOrderResponse(order))
		case "cancel":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			if err := svc.CancelOrder(r.Context(), orderID); err != nil {
				writeOrderError(w, err)
				return
			}
			watcher.Cancel(orderID)
			writeJSON(w, http.StatusOK, cancelOrderResponse{
				ID:     orderID,
				Status: string(domain.OrderStatusCancelled),
			})
		case "check":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			finalized, err := watcher.CheckNow(r.Context(), orderID)
			if err != nil {
				writeOrderError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, checkOrderResponse{Finalized: finalized})
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseOrderPath(path string) (orderID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "orders" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrUnsupportedToken):
		writeError(w, http.StatusBadRequest, codeUnsupportedToken, err.Error())
	case errors.Is(err, domain.ErrListingNotFound):
		writeError(w, http.StatusNotFound, codeListingNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, domain.ErrOrderNotPending):
		writeError(w, http.StatusConflict, codeOrderNotPending, err.Error())
	case errors.Is(err, domain.ErrAmountInUse):
		writeError(w, http.StatusConflict, codeAmountInUse, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type createOrderRequest struct {
	ListingID   string `json:"listing_id"`
	BuyerEmail  string `json:"buyer_email"`
	Quantity    int    `json:"quantity"`
	TokenSymbol string `json:"token_symbol"`
}

func (r createOrderRequest) validate() error {
	if r.ListingID == "" || r.BuyerEmail == "" {
		return domain.ErrInvalidID
	}
	if r.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

type orderResponse struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listing_id"`
	Quantity     int       `json:"quantity"`
	TotalFiat    string    `json:"total_fiat"`
	TotalCrypto  string    `json:"total_crypto"`
	UniqueAmount string    `json:"unique_amount"`
	PayAddress   string    `json:"pay_address"`
	TokenSymbol  string    `json:"token_symbol"`
	Status       string    `json:"status"`
	ProofTxID    string    `json:"proof_tx_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		ID:           order.ID,
		ListingID:    order.ListingID,
		Quantity:     order.Quantity,
		TotalFiat:    order.TotalFiat.String(),
		TotalCrypto:  order.TotalCrypto.String(),
		UniqueAmount: order.UniqueAmount.String(),
		PayAddress:   order.PayAddress,
		TokenSymbol:  order.TokenSymbol,
		Status:       string(order.Status),
		ProofTxID:    order.ProofTxID,
		ExpiresAt:    order.ExpiresAt,
		CreatedAt:    order.CreatedAt,
	}
}

type cancelOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type checkOrderResponse struct {
	Finalized bool `json:"finalized"`
}
