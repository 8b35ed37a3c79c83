// Package appointments provides the appointments domain module.
package appointments

import (
	"clinicbook_backend/internal/appointments/handler"
	"clinicbook_backend/internal/appointments/service"
	apphttp "clinicbook_backend/internal/http"
	"clinicbook_backend/platform/validator"
)

// Module represents the appointments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule wires the HTTP handler around an assembled service.
func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes registers the module's routes under /api/v1/appointments
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Protected.Group("/appointments")
	m.handler.RegisterRoutes(appointments)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
