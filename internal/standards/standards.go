// Package standards provides the compliance catalog: standards, versioned
// control sets, and the control hierarchy.
package standards

import (
	"log/slog"

	"conforma/internal/standards/handler"
	"conforma/internal/standards/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(standards service.StandardStore, versions service.VersionStore, controls service.ControlStore, opts ...service.Option) *Service {
	return service.New(standards, versions, controls, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
