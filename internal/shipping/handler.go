package shipping

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dreamshop/gateway/internal/apierr"
)

type Handler struct {
	calc *Calculator
}

func NewHandler(calc *Calculator) *Handler {
	return &Handler{calc: calc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/shipping/calculate", h.Calculate)
	r.Get("/api/shipping/rates", h.Rates)
}

func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		apierr.Write(w, apierr.BadRequest("invalid request body"))
		return
	}
	h.quote(w, r, req)
}

func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	req := Request{Country: r.URL.Query().Get("country"), Postcode: r.URL.Query().Get("postcode")}
	if s := r.URL.Query().Get("subtotal"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			apierr.Write(w, apierr.BadRequest("invalid subtotal"))
			return
		}
		req.Subtotal = d
	}
	h.quote(w, r, req)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request, req Request) {
	if len(strings.TrimSpace(req.Country)) != 2 {
		apierr.Write(w, apierr.BadRequest("country is required"))
		return
	}
	if req.Subtotal.IsNegative() {
		apierr.Write(w, apierr.BadRequest("subtotal must not be negative"))
		return
	}
	q, err := h.calc.Calculate(r.Context(), req)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, q)
}
