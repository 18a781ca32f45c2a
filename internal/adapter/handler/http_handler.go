package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/seckill-cache/internal/core/domain"
	"github.com/rl1809/seckill-cache/internal/metrics"
)

type ShopService interface {
	QueryByID(ctx context.Context, id int64) (*domain.Shop, error)
	Update(ctx context.Context, shop domain.Shop) error
}

type ShopTypeService interface {
	List(ctx context.Context) ([]domain.ShopType, error)
}

type OrderService interface {
	Seckill(ctx context.Context, userID, voucherID int64) (int64, error)
}

type HTTPHandler struct {
	shops     ShopService
	shopTypes ShopTypeService
	orders    OrderService
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type SeckillHTTPRequest struct {
	UserID int64 `json:"user_id"`
}

type SeckillHTTPResponse struct {
	OrderID int64 `json:"order_id,string"`
}

func NewHTTPHandler(shops ShopService, shopTypes ShopTypeService, orders OrderService, logger *zap.Logger, m *metrics.Metrics) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		shops:     shops,
		shopTypes: shopTypes,
		orders:    orders,
		logger:    logger,
		metrics:   m,
	}
}

// Router returns the API routes. metricsHandler is mounted on /metrics when non-nil.
func (h *HTTPHandler) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.recovery, requestID)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.observe)
	api.HandleFunc("/shop/{id:[0-9]+}", h.GetShop).Methods(http.MethodGet).Name("get_shop")
	api.HandleFunc("/shop", h.UpdateShop).Methods(http.MethodPut).Name("update_shop")
	api.HandleFunc("/shop-type/list", h.ListShopTypes).Methods(http.MethodGet).Name("list_shop_types")
	api.HandleFunc("/voucher-order/seckill/{id:[0-9]+}", h.Seckill).Methods(http.MethodPost).Name("seckill")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Message: "endpoint not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "method not allowed"})
	})

	return r
}

func (h *HTTPHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid shop id"})
		return
	}

	shop, err := h.shops.QueryByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: shop})
}

func (h *HTTPHandler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	var shop domain.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.shops.Update(r.Context(), shop); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (h *HTTPHandler) ListShopTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.shopTypes.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: types})
}

func (h *HTTPHandler) Seckill(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid voucher id"})
		return
	}

	var req SeckillHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "missing required fields"})
		return
	}

	orderID, err := h.orders.Seckill(r.Context(), req.UserID, voucherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "order placed successfully",
		Data:    SeckillHTTPResponse{OrderID: orderID},
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	info := classify(err)
	if info.httpStatus >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Error(err))
	}
	if info.httpStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, info.httpStatus, Response{Message: info.message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				writeJSON(w, http.StatusInternalServerError, Response{Message: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe logs each API request and records it under its route name.
func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		op := "unknown"
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			op = route.GetName()
		}
		duration := time.Since(start)
		h.metrics.RecordRequest("http", op, strconv.Itoa(rw.status), duration.Seconds())
		h.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", duration),
			zap.String("request_id", r.Header.Get("X-Request-ID")))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
