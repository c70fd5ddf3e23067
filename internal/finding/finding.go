// Package finding provides numbered findings, their remediation plans, and
// generation from low-scoring approved answers.
package finding

import (
	"log/slog"

	"conforma/internal/finding/handler"
	"conforma/internal/finding/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(findings service.FindingStore, sequences service.SequenceStore,
	actions service.ActionStore, tasks service.TaskStore, answers service.AnswerSource,
	opts ...service.Option) *Service {
	return service.New(findings, sequences, actions, tasks, answers, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
