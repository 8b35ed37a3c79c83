package live

import (
	apphttp "clinicbook_backend/internal/http"
)

// Module exposes the live appointment channel over HTTP.
type Module struct {
	handler *Handler
}

func NewModule(handler *Handler) *Module {
	return &Module{handler: handler}
}

func (m *Module) Name() string {
	return "live"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Stream.Group("/live"))
}
