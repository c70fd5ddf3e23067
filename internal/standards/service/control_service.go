package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"conforma/internal/standards/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateControlInput struct {
	ParentID    *id.ControlID
	NodeType    models.NodeType
	Code        string
	Title       string
	Description string
	Criticality int
}

// CreateControl adds a node to a draft version's control tree. The parent
// must live in the same version and its type must accept children of the
// new node's type.
func (s *Service) CreateControl(ctx context.Context, tenantID id.TenantID, versionID id.VersionID, in CreateControlInput) (*models.ControlNode, error) {
	if _, _, err := s.editableVersion(ctx, tenantID, versionID); err != nil {
		return nil, err
	}
	node, err := models.NewControlNode(id.NewControlID(), versionID, in.ParentID,
		in.NodeType, in.Code, in.Title, in.Description, in.Criticality, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if err := s.validateControlParent(ctx, node, *in.ParentID); err != nil {
			return nil, err
		}
	}
	if err := s.controls.CreateIfCodeAvailable(ctx, node); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "control code already in use for this version")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create control")
	}
	return node, nil
}

func (s *Service) GetControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) (*models.ControlNode, error) {
	node, err := s.controls.FindByID(ctx, controlID)
	if err != nil {
		return nil, notFound(err, "control")
	}
	version, err := s.versions.FindByID(ctx, node.VersionID)
	if err != nil {
		return nil, notFound(err, "version")
	}
	if _, err := s.visibleStandard(ctx, tenantID, version.StandardID); err != nil {
		return nil, err
	}
	return node, nil
}

type UpdateControlInput struct {
	Title       *string
	Description *string
	Status      *models.ControlStatus
	Criticality *int
	SetParent   bool
	ParentID    *id.ControlID
}

// UpdateControl applies partial updates on a draft version's node.
// Re-parenting walks the ancestor chain to reject cycles.
func (s *Service) UpdateControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID, in UpdateControlInput) (*models.ControlNode, error) {
	node, err := s.controls.FindByID(ctx, controlID)
	if err != nil {
		return nil, notFound(err, "control")
	}
	if _, _, err := s.editableVersion(ctx, tenantID, node.VersionID); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "control title cannot be empty")
		}
		node.Title = title
	}
	if in.Description != nil {
		node.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown control status %q", *in.Status)
		}
		node.Status = *in.Status
	}
	if in.Criticality != nil {
		if *in.Criticality < models.MinCriticality || *in.Criticality > models.MaxCriticality {
			return nil, dErrors.Newf(dErrors.CodeValidation, "criticality must be between %d and %d",
				models.MinCriticality, models.MaxCriticality)
		}
		node.Criticality = *in.Criticality
	}
	if in.SetParent {
		if in.ParentID == nil {
			if node.NodeType.RequiresParent() {
				return nil, dErrors.Newf(dErrors.CodeValidation, "%s nodes require a parent", node.NodeType)
			}
			node.ParentID = nil
		} else {
			if err := s.validateControlParent(ctx, node, *in.ParentID); err != nil {
				return nil, err
			}
			node.ParentID = in.ParentID
		}
	}
	if err := s.controls.Update(ctx, node); err != nil {
		return nil, notFound(err, "control")
	}
	return node, nil
}

// DeleteControl removes a childless node from a draft version.
func (s *Service) DeleteControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) error {
	node, err := s.controls.FindByID(ctx, controlID)
	if err != nil {
		return notFound(err, "control")
	}
	if _, _, err := s.editableVersion(ctx, tenantID, node.VersionID); err != nil {
		return err
	}
	siblings, err := s.controls.ListByVersion(ctx, node.VersionID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	for _, candidate := range siblings {
		if candidate.ParentID != nil && *candidate.ParentID == controlID {
			return dErrors.New(dErrors.CodeConflict, "control has child nodes")
		}
	}
	if err := s.controls.Delete(ctx, controlID); err != nil {
		return notFound(err, "control")
	}
	return nil
}

// ControlTreeNode is one node of the nested tree listing.
type ControlTreeNode struct {
	*models.ControlNode
	Children []*ControlTreeNode `json:"children,omitempty"`
}

// ListControlTree returns the version's controls as a nested tree, roots
// first, siblings ordered by sort order then code.
func (s *Service) ListControlTree(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) ([]*ControlTreeNode, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, notFound(err, "version")
	}
	if _, err := s.visibleStandard(ctx, tenantID, version.StandardID); err != nil {
		return nil, err
	}
	nodes, err := s.controls.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	return buildTree(nodes), nil
}

func buildTree(nodes []*models.ControlNode) []*ControlTreeNode {
	byID := make(map[id.ControlID]*ControlTreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &ControlTreeNode{ControlNode: n}
	}
	var roots []*ControlTreeNode
	for _, n := range nodes {
		wrapped := byID[n.ID]
		if n.ParentID != nil {
			if parent, ok := byID[*n.ParentID]; ok {
				parent.Children = append(parent.Children, wrapped)
				continue
			}
		}
		roots = append(roots, wrapped)
	}
	var sortLevel func(level []*ControlTreeNode)
	sortLevel = func(level []*ControlTreeNode) {
		sort.Slice(level, func(i, j int) bool {
			if level[i].SortOrder != level[j].SortOrder {
				return level[i].SortOrder < level[j].SortOrder
			}
			return level[i].Code < level[j].Code
		})
		for _, n := range level {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots
}

const maxTreeDepth = 64

// validateControlParent enforces the tree invariants: same version, the
// hierarchy table, no self-parenting, no cycles.
func (s *Service) validateControlParent(ctx context.Context, node *models.ControlNode, parentID id.ControlID) error {
	if parentID == node.ID {
		return dErrors.New(dErrors.CodeValidation, "control cannot be its own parent")
	}
	parent, err := s.controls.FindByID(ctx, parentID)
	if err != nil {
		return notFound(err, "parent control")
	}
	if parent.VersionID != node.VersionID {
		return dErrors.New(dErrors.CodeValidation, "parent control belongs to a different version")
	}
	if !node.NodeType.AcceptsParent(parent.NodeType) {
		return dErrors.Newf(dErrors.CodeValidation, "%s nodes cannot sit under %s nodes", node.NodeType, parent.NodeType)
	}

	current := parent
	for depth := 0; depth < maxTreeDepth; depth++ {
		if current.ID == node.ID {
			return dErrors.New(dErrors.CodeValidation, "control parent chain would form a cycle")
		}
		if current.ParentID == nil {
			return nil
		}
		current, err = s.controls.FindByID(ctx, *current.ParentID)
		if err != nil {
			return notFound(err, "parent control")
		}
	}
	return dErrors.New(dErrors.CodeValidation, "control tree exceeds maximum depth")
}
