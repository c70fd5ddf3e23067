// Package reporting computes compliance dashboards on read, aggregating the
// assessment, response, finding, and remediation state of a tenant.
package reporting

import (
	"log/slog"

	"conforma/internal/reporting/handler"
	"conforma/internal/reporting/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(assessments service.AssessmentSource, scores service.ScoreSource,
	findings service.FindingSource, remediation service.RemediationSource,
	opts ...service.Option) *Service {
	return service.New(assessments, scores, findings, remediation, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
