//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=server_mocks
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/service"
)

type OrderService interface {
	CreateOrder(ctx context.Context, customerID, restaurantID string, items []service.ItemInput) (*repository.Order, error)
	Order(ctx context.Context, id string) (*repository.Order, error)
	OrderItems(ctx context.Context, orderID string) ([]repository.OrderItem, error)
	Orders(ctx context.Context, actor auth.Identity) ([]repository.Order, error)
	UpdateStatus(ctx context.Context, orderID string, requested order.Status, actor auth.Identity) (order.Status, error)
	AssignCourier(ctx context.Context, orderID, courierID string, actor auth.Identity) (*repository.Order, error)
	PublishLocation(ctx context.Context, orderID string, actor auth.Identity, lat, lng float64) error
}

type UserRepo interface {
	Create(ctx context.Context, name, email, password string, role order.Role) (*repository.User, error)
	Authenticate(ctx context.Context, email, password string) (*repository.User, error)
}

type SessionRepo interface {
	Create(ctx context.Context, userID, token string, expiresAt time.Time) error
	Revoke(ctx context.Context, userID, token string) error
	RevokeAll(ctx context.Context, userID string) error
}

type MenuRepo interface {
	Create(ctx context.Context, item *repository.MenuItem) error
	GetByID(ctx context.Context, id string) (*repository.MenuItem, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.MenuItem, error)
	Update(ctx context.Context, item *repository.MenuItem) error
	Delete(ctx context.Context, restaurantID, id string) error
}

type ReviewRepo interface {
	Create(ctx context.Context, rev *repository.Review) error
	ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.Review, error)
}

type PaymentRepo interface {
	Create(ctx context.Context, p *repository.Payment) error
	GetByOrder(ctx context.Context, orderID string) (*repository.Payment, error)
}

type Server struct {
	orders   OrderService
	users    UserRepo
	sessions SessionRepo
	menu     MenuRepo
	reviews  ReviewRepo
	payments PaymentRepo
	verifier *auth.Verifier
	gate     http.Handler
	tokenTTL time.Duration
	server   *http.Server
}

func New(
	orders OrderService,
	users UserRepo,
	sessions SessionRepo,
	menu MenuRepo,
	reviews ReviewRepo,
	payments PaymentRepo,
	verifier *auth.Verifier,
	gate http.Handler,
	tokenTTL time.Duration,
) *Server {
	return &Server{
		orders:   orders,
		users:    users,
		sessions: sessions,
		menu:     menu,
		reviews:  reviews,
		payments: payments,
		verifier: verifier,
		gate:     gate,
		tokenTTL: tokenTTL,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	zap.L().Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.withAuth(s.handleLogout))
	mux.HandleFunc("POST /api/users/{id}/logout", s.withAuth(s.handleForceLogout))

	mux.HandleFunc("GET /api/restaurants/{id}/menu", s.handleListMenu)
	mux.HandleFunc("POST /api/menu", s.withAuth(s.handleCreateMenuItem))
	mux.HandleFunc("PUT /api/menu/{id}", s.withAuth(s.handleUpdateMenuItem))
	mux.HandleFunc("DELETE /api/menu/{id}", s.withAuth(s.handleDeleteMenuItem))

	mux.HandleFunc("POST /api/orders", s.withAuth(s.handleCreateOrder))
	mux.HandleFunc("GET /api/orders", s.withAuth(s.handleListOrders))
	mux.HandleFunc("GET /api/orders/{id}", s.withAuth(s.handleGetOrder))
	mux.HandleFunc("PUT /api/orders/{id}/status", s.withAuth(s.handleUpdateOrderStatus))
	mux.HandleFunc("PUT /api/orders/{id}/courier", s.withAuth(s.handleAssignCourier))
	mux.HandleFunc("POST /api/orders/{id}/location", s.withAuth(s.handlePublishLocation))

	mux.HandleFunc("POST /api/reviews", s.withAuth(s.handleCreateReview))
	mux.HandleFunc("GET /api/restaurants/{id}/reviews", s.handleListReviews)

	mux.HandleFunc("POST /api/payments", s.withAuth(s.handleCreatePayment))
	mux.HandleFunc("GET /api/orders/{id}/payment", s.withAuth(s.handleGetPayment))

	mux.Handle("GET /ws", s.gate)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

type ctxKey int

const identityKey ctxKey = iota

// withAuth verifies the bearer token and puts the caller's identity into the
// request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromHeader(r.Header.Get("Authorization"))
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next(w, r.WithContext(ctx))
	}
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey).(auth.Identity)
	return id
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError translates domain errors into HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrForbidden), errors.Is(err, order.ErrNotAssignedCourier):
		respondError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, repository.ErrObjectNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, repository.ErrUserExists):
		respondError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, order.ErrStatusConflict):
		respondError(w, http.StatusConflict, "Order status changed concurrently, retry")
	case errors.Is(err, order.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "Error: "+err.Error())
	case errors.Is(err, service.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, "Error: "+err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}
