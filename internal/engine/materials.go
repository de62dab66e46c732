package engine

import (
	"context"
	"fmt"
	"strings"

	"obraline/internal/access"
	"obraline/internal/domain"
	"obraline/internal/events"
)

// MaterialCreateOptions are parameters for registering a material.
type MaterialCreateOptions struct {
	ProjectID   string
	Name        string
	Unit        string
	Quantity    int
	Description string
	ActorID     string
}

// CreateMaterial registers inventory on a project. Material management sits
// behind crear_tarea, the same capability that consumes stock.
func (e Engine) CreateMaterial(ctx context.Context, opts MaterialCreateOptions) (domain.Material, error) {
	if err := e.Access.Require(ctx, opts.ProjectID, opts.ActorID, access.ActionCrearTarea); err != nil {
		return domain.Material{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Material{}, validationf("name is required")
	}
	if opts.Quantity < 0 {
		return domain.Material{}, validationf("quantity must not be negative")
	}
	now := e.nowRFC3339()
	m := domain.Material{
		ID:          newID(),
		ProjectID:   opts.ProjectID,
		Name:        strings.TrimSpace(opts.Name),
		Unit:        opts.Unit,
		Quantity:    opts.Quantity,
		Description: opts.Description,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Material{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMaterial(ctx, tx, m); err != nil {
		return domain.Material{}, fmt.Errorf("insert material: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "material.created", m.ProjectID, "material", m.ID, opts.ActorID, events.EventPayload{
		"name": m.Name, "quantity": m.Quantity,
	}); err != nil {
		return domain.Material{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

// ListMaterials returns the project inventory.
func (e Engine) ListMaterials(ctx context.Context, projectID, userID string) ([]domain.Material, error) {
	if err := e.Access.Require(ctx, projectID, userID, access.ActionVerProyecto); err != nil {
		return nil, err
	}
	return e.Repo.ListMaterials(ctx, projectID)
}

// SetMaterialQuantity replaces a material's stock level. Negative targets are
// rejected rather than clamped.
func (e Engine) SetMaterialQuantity(ctx context.Context, materialID string, quantity int, actorID string) (domain.Material, error) {
	if quantity < 0 {
		return domain.Material{}, validationf("quantity must not be negative")
	}
	m, err := e.Repo.GetMaterial(ctx, materialID)
	if err != nil {
		return domain.Material{}, err
	}
	if err := e.Access.Require(ctx, m.ProjectID, actorID, access.ActionCrearTarea); err != nil {
		return domain.Material{}, err
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Material{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetMaterialQuantity(ctx, tx, m.ID, quantity, now); err != nil {
		return domain.Material{}, err
	}
	if err := e.Events.Append(ctx, tx, "material.stock_updated", m.ProjectID, "material", m.ID, actorID, events.EventPayload{
		"previous": m.Quantity, "quantity": quantity,
	}); err != nil {
		return domain.Material{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Material{}, err
	}
	m.Quantity = quantity
	m.UpdatedAt = now
	return m, nil
}
