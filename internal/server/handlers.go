package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/service"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing name, email or password")
		return
	}
	role := order.Role(req.Role)
	if !role.Valid() || role == order.RoleAdmin {
		respondError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	u, err := s.users.Create(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":    u.ID,
		"email": u.Email,
		"role":  string(u.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	token, err := s.verifier.Sign(auth.Identity{UserID: u.ID, Role: u.Role}, s.tokenTTL)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.sessions.Create(r.Context(), u.ID, token, time.Now().UTC().Add(s.tokenTTL)); err != nil {
		respondDomainError(w, err)
		return
	}

	zap.L().Info("user logged in", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"id":    u.ID,
		"role":  string(u.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	token := auth.TokenFromHeader(r.Header.Get("Authorization"))

	if err := s.sessions.Revoke(r.Context(), id.UserID, token); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// handleForceLogout revokes every session of a user. Their tokens fail the
// next verify, including on live realtime connections.
func (s *Server) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleAdmin {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	userID := r.PathValue("id")
	if err := s.sessions.RevokeAll(r.Context(), userID); err != nil {
		respondDomainError(w, err)
		return
	}

	zap.L().Info("all sessions revoked", zap.String("user_id", userID), zap.String("actor_id", id.UserID))
	respondJSON(w, http.StatusOK, map[string]string{"message": "Sessions revoked"})
}

func (s *Server) handleListMenu(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.PathValue("id")
	if restaurantID == "" {
		respondError(w, http.StatusBadRequest, "Missing restaurant ID")
		return
	}

	items, err := s.menu.ListByRestaurant(r.Context(), restaurantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleRestaurant {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		PriceCents  int64  `json:"price_cents"`
		Available   bool   `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.PriceCents <= 0 {
		respondError(w, http.StatusBadRequest, "Missing name or invalid price")
		return
	}

	item := &repository.MenuItem{
		RestaurantID: id.UserID,
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		Available:    req.Available,
	}
	if err := s.menu.Create(r.Context(), item); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleRestaurant {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	itemID := r.PathValue("id")

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		PriceCents  int64  `json:"price_cents"`
		Available   bool   `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item := &repository.MenuItem{
		ID:           itemID,
		RestaurantID: id.UserID,
		Name:         req.Name,
		Description:  req.Description,
		PriceCents:   req.PriceCents,
		Available:    req.Available,
	}
	if err := s.menu.Update(r.Context(), item); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleRestaurant {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if err := s.menu.Delete(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Menu item deleted"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleCustomer {
		respondError(w, http.StatusForbidden, "Only customers can place orders")
		return
	}

	var req struct {
		RestaurantID string `json:"restaurant_id"`
		Items        []struct {
			MenuItemID string `json:"menu_item_id"`
			Quantity   int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RestaurantID == "" {
		respondError(w, http.StatusBadRequest, "Missing restaurant_id")
		return
	}

	items := make([]service.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemInput{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}

	o, err := s.orders.CreateOrder(r.Context(), id.UserID, req.RestaurantID, items)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.Orders(r.Context(), identityFrom(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	orderID := r.PathValue("id")

	o, err := s.orders.Order(r.Context(), orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !realtime.IsParty(id, o) {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	items, err := s.orders.OrderItems(r.Context(), orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order": o,
		"items": items,
	})
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, err := s.orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(req.Status), identityFrom(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleAssignCourier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourierID string `json:"courier_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CourierID == "" {
		respondError(w, http.StatusBadRequest, "Missing courier_id")
		return
	}

	o, err := s.orders.AssignCourier(r.Context(), r.PathValue("id"), req.CourierID, identityFrom(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handlePublishLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.orders.PublishLocation(r.Context(), r.PathValue("id"), identityFrom(r), req.Lat, req.Lng); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Location published"})
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Role != order.RoleCustomer {
		respondError(w, http.StatusForbidden, "Only customers can leave reviews")
		return
	}

	var req struct {
		OrderID string `json:"order_id"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	o, err := s.orders.Order(r.Context(), req.OrderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if o.CustomerID != id.UserID {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	if o.Status != order.StatusDelivered {
		respondError(w, http.StatusBadRequest, "Only delivered orders can be reviewed")
		return
	}

	rev := &repository.Review{
		OrderID:      o.ID,
		CustomerID:   id.UserID,
		RestaurantID: o.RestaurantID,
		Rating:       req.Rating,
		Comment:      req.Comment,
	}
	if err := s.reviews.Create(r.Context(), rev); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.reviews.ListByRestaurant(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	var req struct {
		OrderID string `json:"order_id"`
		Method  string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Method == "" {
		respondError(w, http.StatusBadRequest, "Missing method")
		return
	}

	o, err := s.orders.Order(r.Context(), req.OrderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if o.CustomerID != id.UserID {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	p := &repository.Payment{
		OrderID: o.ID,
		Amount:  o.TotalCents,
		Method:  req.Method,
		Status:  "completed",
	}
	if err := s.payments.Create(r.Context(), p); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	orderID := r.PathValue("id")

	o, err := s.orders.Order(r.Context(), orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !realtime.IsParty(id, o) {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	p, err := s.payments.GetByOrder(r.Context(), orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
