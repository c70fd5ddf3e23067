package service

import (
	"context"
	"sort"
	"time"

	"conforma/internal/assessment/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// materialize resolves the scoped control set and snapshots every active
// mapped question into assessment-scoped rows. Explicit scopes bring their
// descendants when include_children is set; no scopes means every active
// control of the version.
func (s *Service) materialize(ctx context.Context, tenantID id.TenantID,
	assessment *models.Assessment, scopeInputs []ScopeInput, now time.Time) ([]*models.Question, []*models.Scope, error) {
	controls, err := s.catalog.ListControls(ctx, tenantID, assessment.VersionID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[id.ControlID]CatalogControl, len(controls))
	children := make(map[id.ControlID][]id.ControlID)
	for _, c := range controls {
		byID[c.ID] = c
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	selected := make(map[id.ControlID]struct{})
	var scopes []*models.Scope

	if len(scopeInputs) == 0 {
		for _, c := range controls {
			if c.Active {
				selected[c.ID] = struct{}{}
			}
		}
	} else {
		for _, in := range scopeInputs {
			root, ok := byID[in.ControlID]
			if !ok {
				return nil, nil, dErrors.New(dErrors.CodeValidation, "scope control does not belong to the assessment's version")
			}
			scopes = append(scopes, &models.Scope{
				AssessmentID:    assessment.ID,
				ControlID:       in.ControlID,
				IncludeChildren: in.IncludeChildren,
			})
			if root.Active {
				selected[root.ID] = struct{}{}
			}
			if in.IncludeChildren {
				collectDescendants(root.ID, byID, children, selected)
			}
		}
	}

	controlIDs := make([]id.ControlID, 0, len(selected))
	for controlID := range selected {
		controlIDs = append(controlIDs, controlID)
	}
	sort.Slice(controlIDs, func(i, j int) bool { return controlIDs[i].String() < controlIDs[j].String() })

	mapped, err := s.bank.ListMappedQuestions(ctx, tenantID, controlIDs)
	if err != nil {
		return nil, nil, err
	}

	questions := make([]*models.Question, 0, len(mapped))
	for i, bq := range mapped {
		questions = append(questions, &models.Question{
			ID:           id.NewAssessmentQuestionID(),
			AssessmentID: assessment.ID,
			ControlID:    bq.ControlID,
			QuestionID:   bq.QuestionID,
			QuestionCode: bq.QuestionCode,
			QuestionText: bq.QuestionText,
			QuestionType: bq.QuestionType,
			ScaleType:    bq.ScaleType,
			Guidance:     bq.Guidance,
			IsMandatory:  bq.IsMandatory,
			SortOrder:    i,
			CreatedAt:    now,
		})
	}
	return questions, scopes, nil
}

func collectDescendants(root id.ControlID, byID map[id.ControlID]CatalogControl,
	children map[id.ControlID][]id.ControlID, selected map[id.ControlID]struct{}) {
	for _, childID := range children[root] {
		if c, ok := byID[childID]; ok && c.Active {
			selected[childID] = struct{}{}
		}
		collectDescendants(childID, byID, children, selected)
	}
}
