// Package questionbank provides the reusable question catalog and its
// mappings onto control nodes.
package questionbank

import (
	"log/slog"

	"conforma/internal/questionbank/handler"
	"conforma/internal/questionbank/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(questions service.QuestionStore, options service.OptionStore, maps service.MapStore,
	controls service.ControlCatalog, opts ...service.Option) *Service {
	return service.New(questions, options, maps, controls, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
