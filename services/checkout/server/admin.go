package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"jewelstore/gateway/middleware"
	"jewelstore/services/checkout/ledger"
	"jewelstore/services/checkout/models"
)

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger := s.adminLogger(r)
	orders, err := s.ledger.ListOrders(r.Context(), status, limit)
	if err != nil {
		logger.Error("list orders failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("orders unavailable"))
		return
	}
	logger.Info("admin listed orders", slog.String("status", string(status)), slog.Int("count", len(orders)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	logger := s.adminLogger(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	order, err := s.ledger.GetOrder(r.Context(), id)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logger.Error("load order failed", slog.String("order_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("order unavailable"))
		return
	}
	logger.Info("admin read order", slog.String("order_id", id))
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger := s.adminLogger(r)
	deliveries, err := s.ledger.ListDeliveries(r.Context(), limit)
	if err != nil {
		logger.Error("list deliveries failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, errors.New("deliveries unavailable"))
		return
	}
	logger.Info("admin listed webhook deliveries", slog.Int("count", len(deliveries)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
}

// adminLogger tags operator reads with the token subject for auditing.
func (s *Server) adminLogger(r *http.Request) *slog.Logger {
	return s.requestLogger(r).With(slog.String("subject", middleware.SubjectFromContext(r.Context())))
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}
