// Package httpapi implements the single in-scope HTTP route of spec §6:
// POST /orders. Grounded on uhyunpark-hyperlicked/pkg/api.Server, which
// routes with github.com/gorilla/mux and wraps the router with
// github.com/rs/cors the same way; respondJSON/respondError below mirror
// that file's helpers of the same name.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/service"
)

// Server wires the order-submission service to an HTTP router.
type Server struct {
	router *mux.Router
	svc    *service.OrderSubmitService
}

// New builds a Server with its routes already registered.
func New(svc *service.OrderSubmitService) *Server {
	s := &Server{router: mux.NewRouter(), svc: svc}
	s.router.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	return s
}

// Handler returns the CORS-wrapped handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "x-user-address"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

type submitOrderRequest struct {
	MarketID string          `json:"marketId"`
	Side     domain.Side     `json:"side"`
	Outcome  domain.Outcome  `json:"outcome"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type tradeView struct {
	ID           string          `json:"id"`
	MarketID     string          `json:"marketId"`
	Outcome      domain.Outcome  `json:"outcome"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	MakerOrderID string          `json:"makerOrderId"`
	TakerOrderID string          `json:"takerOrderId"`
	MakerAddress string          `json:"makerAddress"`
	TakerAddress string          `json:"takerAddress"`
	Timestamp    string          `json:"timestamp"`
}

type submitOrderResponse struct {
	OrderID        string             `json:"orderId"`
	MarketID       string             `json:"marketId"`
	Side           domain.Side        `json:"side"`
	Outcome        domain.Outcome     `json:"outcome"`
	Price          decimal.Decimal    `json:"price"`
	Quantity       int64              `json:"quantity"`
	FilledQuantity int64              `json:"filledQuantity"`
	Status         domain.OrderStatus `json:"status"`
	Trades         []tradeView        `json:"trades"`
	Timestamp      string             `json:"timestamp"`
	Signature      string             `json:"signature"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	OrderID   string `json:"orderId,omitempty"`
	RequestID string `json:"requestId"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	userAddress, err := resolveUserAddress(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), "", requestID)
		return
	}

	var body submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", "", requestID)
		return
	}

	req := service.Request{
		UserAddress: userAddress,
		MarketID:    body.MarketID,
		Side:        body.Side,
		Outcome:     body.Outcome,
		Price:       body.Price,
		Quantity:    body.Quantity,
	}

	signed, derr := s.svc.Submit(r.Context(), req)
	if derr != nil {
		status, orderID := dispositionFor(derr, signed.OrderID)
		log.Error().Err(derr).Str("requestId", requestID).Str("kind", string(derr.Kind)).Msg("order submission failed")
		respondError(w, status, derr.Code, derr.Message, orderID, requestID)
		return
	}

	trades := make([]tradeView, 0, len(signed.Trades))
	for _, tr := range signed.Trades {
		trades = append(trades, tradeView{
			ID:           tr.ID,
			MarketID:     tr.MarketID,
			Outcome:      tr.Outcome,
			Price:        tr.Price,
			Quantity:     tr.Quantity,
			MakerOrderID: tr.MakerOrderID,
			TakerOrderID: tr.TakerOrderID,
			MakerAddress: tr.MakerAddress,
			TakerAddress: tr.TakerAddress,
			Timestamp:    tr.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	respondJSON(w, http.StatusCreated, submitOrderResponse{
		OrderID:        signed.OrderID,
		MarketID:       signed.MarketID,
		Side:           signed.Side,
		Outcome:        signed.Outcome,
		Price:          signed.Price,
		Quantity:       signed.Quantity,
		FilledQuantity: signed.FilledQuantity,
		Status:         signed.Status,
		Trades:         trades,
		Timestamp:      signed.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Signature:      signed.Signature,
	})
}

// dispositionFor maps a domain.Error's Kind to the HTTP status of spec
// §7. SigningFailure is the one case where the order was already
// persisted: its id is surfaced even though the overall status is 500.
func dispositionFor(derr *domain.Error, orderID string) (status int, respOrderID string) {
	switch derr.Kind {
	case domain.KindValidation, domain.KindMarketNotTradable:
		return http.StatusBadRequest, ""
	case domain.KindRateLimited:
		return http.StatusTooManyRequests, ""
	case domain.KindSigningFailure:
		return http.StatusInternalServerError, orderID
	default:
		return http.StatusInternalServerError, ""
	}
}

var errMissingAuth = errors.New("missing Authorization bearer token or x-user-address header")

func resolveUserAddress(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if addr, ok := strings.CutPrefix(h, "Bearer "); ok && addr != "" {
			return addr, nil
		}
	}
	if addr := r.Header.Get("x-user-address"); addr != "" {
		return addr, nil
	}
	return "", errMissingAuth
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message, orderID, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     code,
		Message:   message,
		OrderID:   orderID,
		RequestID: requestID,
	})
}
