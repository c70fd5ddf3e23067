// Package adapters bridges the question bank to the standards catalog.
package adapters

import (
	"context"

	"conforma/internal/standards/models"
	id "conforma/pkg/domain"
)

type controlResolver interface {
	GetControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) (*models.ControlNode, error)
}

// ControlCatalog satisfies the question bank's visibility check using the
// standards service. The catalog already answers 404 for foreign tenant
// controls, so a successful read is the whole check.
type ControlCatalog struct {
	standards controlResolver
}

func NewControlCatalog(standards controlResolver) *ControlCatalog {
	return &ControlCatalog{standards: standards}
}

func (c *ControlCatalog) ControlVisible(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) error {
	_, err := c.standards.GetControl(ctx, tenantID, controlID)
	return err
}
