// Package assessment provides compliance campaigns: scoping a standard
// version, materializing the question set, and assigning the work.
package assessment

import (
	"log/slog"

	"conforma/internal/assessment/handler"
	"conforma/internal/assessment/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(assessments service.AssessmentStore, scopes service.ScopeStore,
	questions service.QuestionStore, assignments service.AssignmentStore,
	catalog service.ControlCatalog, bank service.QuestionBank, users service.UserDirectory,
	opts ...service.Option) *Service {
	return service.New(assessments, scopes, questions, assignments, catalog, bank, users, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
