// Package response provides the answer workflow: drafts, the submit/review
// lifecycle with versioned history, and evidence files.
package response

import (
	"log/slog"

	"conforma/internal/platform/blob"
	"conforma/internal/response/handler"
	"conforma/internal/response/service"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(responses service.ResponseStore, versions service.VersionStore,
	reviews service.ReviewStore, evidence service.EvidenceStore, links service.LinkStore,
	assessments service.AssessmentDirectory, options service.OptionSource,
	blobs blob.Store, opts ...service.Option) *Service {
	return service.New(responses, versions, reviews, evidence, links, assessments, options, blobs, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
