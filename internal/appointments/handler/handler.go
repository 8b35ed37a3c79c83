package handler

import (
	"context"
	"net/http"

	"clinicbook_backend/internal/appointments/transport"
	"clinicbook_backend/platform/httpkit"
	"clinicbook_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// AppointmentService is the booking API the handler exposes.
// *service.Service implements it.
type AppointmentService interface {
	Create(ctx context.Context, userID uuid.UUID, isAdmin bool, req transport.CreateAppointmentRequest) (*transport.AppointmentResponse, error)
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID, isAdmin bool) (*transport.AppointmentResponse, error)
	Update(ctx context.Context, id uuid.UUID, userID uuid.UUID, isAdmin bool, req transport.UpdateAppointmentRequest) (*transport.AppointmentResponse, error)
	Delete(ctx context.Context, id uuid.UUID, isAdmin bool) error
	List(ctx context.Context, userID uuid.UUID, isAdmin bool, req transport.ListAppointmentsRequest) (*transport.AppointmentListResponse, error)
	AvailableSlots(ctx context.Context, req transport.AvailableSlotsRequest) (*transport.AvailableSlotsResponse, error)
}

// Handler handles HTTP requests for appointments
type Handler struct {
	svc AppointmentService
	val *validator.Validator
}

// New creates a new appointments handler
func New(svc AppointmentService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the appointment routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/slots", h.AvailableSlots)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", httpkit.RequireRole(httpkit.RoleAdmin), h.Delete)
}

// List handles GET /api/v1/appointments
func (h *Handler) List(c *gin.Context) {
	req := transport.ListAppointmentsRequest{Page: 1, PageSize: 20}
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	isAdmin := containsRole(identity.Roles(), httpkit.RoleAdmin)
	result, err := h.svc.List(c.Request.Context(), identity.UserID(), isAdmin, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Create handles POST /api/v1/appointments
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	isAdmin := containsRole(identity.Roles(), httpkit.RoleAdmin)
	result, err := h.svc.Create(c.Request.Context(), identity.UserID(), isAdmin, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

// GetByID handles GET /api/v1/appointments/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	isAdmin := containsRole(identity.Roles(), httpkit.RoleAdmin)
	result, err := h.svc.GetByID(c.Request.Context(), id, identity.UserID(), isAdmin)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Update handles PATCH /api/v1/appointments/:id
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	isAdmin := containsRole(identity.Roles(), httpkit.RoleAdmin)
	result, err := h.svc.Update(c.Request.Context(), id, identity.UserID(), isAdmin, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Delete handles DELETE /api/v1/appointments/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	isAdmin := containsRole(identity.Roles(), httpkit.RoleAdmin)
	if err := h.svc.Delete(c.Request.Context(), id, isAdmin); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

// AvailableSlots handles GET /api/v1/appointments/slots
func (h *Handler) AvailableSlots(c *gin.Context) {
	var req transport.AvailableSlotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	if httpkit.MustGetIdentity(c) == nil {
		return
	}

	result, err := h.svc.AvailableSlots(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
