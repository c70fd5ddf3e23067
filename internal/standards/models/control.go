package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// NodeType places a control node in the catalog hierarchy.
type NodeType string

const (
	NodeDomain     NodeType = "domain"
	NodeSubDomain  NodeType = "sub_domain"
	NodeControl    NodeType = "control"
	NodeSubControl NodeType = "sub_control"
)

// allowedParents is the hierarchy table: which parent types each node type
// accepts. A nil entry means the node must be a root.
var allowedParents = map[NodeType][]NodeType{
	NodeDomain:     nil,
	NodeSubDomain:  {NodeDomain},
	NodeControl:    {NodeDomain, NodeSubDomain},
	NodeSubControl: {NodeControl},
}

func (t NodeType) Valid() bool {
	_, ok := allowedParents[t]
	return ok
}

// AcceptsParent reports whether parent may be the direct parent of t.
func (t NodeType) AcceptsParent(parent NodeType) bool {
	for _, allowed := range allowedParents[t] {
		if allowed == parent {
			return true
		}
	}
	return false
}

// RequiresParent reports whether t may only appear under a parent node.
func (t NodeType) RequiresParent() bool {
	return len(allowedParents[t]) > 0
}

// ControlStatus is the lifecycle of a single control node.
type ControlStatus string

const (
	ControlActive     ControlStatus = "active"
	ControlDraft      ControlStatus = "draft"
	ControlDeprecated ControlStatus = "deprecated"
)

func (s ControlStatus) Valid() bool {
	switch s {
	case ControlActive, ControlDraft, ControlDeprecated:
		return true
	}
	return false
}

const (
	MinCriticality = 1
	MaxCriticality = 5
)

// ControlNode is one node of a version's control tree. Code is unique per
// version; criticality weights reporting.
type ControlNode struct {
	ID          id.ControlID  `json:"id"`
	VersionID   id.VersionID  `json:"version_id"`
	ParentID    *id.ControlID `json:"parent_id,omitempty"`
	NodeType    NodeType      `json:"node_type"`
	Code        string        `json:"code"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      ControlStatus `json:"status"`
	Criticality int           `json:"criticality"`
	SortOrder   int           `json:"sort_order"`
	CreatedAt   time.Time     `json:"created_at"`
}

func NewControlNode(controlID id.ControlID, versionID id.VersionID, parentID *id.ControlID,
	nodeType NodeType, code, title, description string, criticality int, now time.Time) (*ControlNode, error) {
	if !nodeType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown node type %q", nodeType)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "control code cannot be empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "control title cannot be empty")
	}
	if criticality == 0 {
		criticality = 3
	}
	if criticality < MinCriticality || criticality > MaxCriticality {
		return nil, dErrors.Newf(dErrors.CodeValidation, "criticality must be between %d and %d", MinCriticality, MaxCriticality)
	}
	if nodeType.RequiresParent() && parentID == nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s nodes require a parent", nodeType)
	}
	if !nodeType.RequiresParent() && parentID != nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s nodes must be roots", nodeType)
	}
	return &ControlNode{
		ID:          controlID,
		VersionID:   versionID,
		ParentID:    parentID,
		NodeType:    nodeType,
		Code:        code,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      ControlActive,
		Criticality: criticality,
		CreatedAt:   now,
	}, nil
}
