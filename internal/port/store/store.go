// Package store defines the persistence ports for feedback definitions
// and instances.
package store

import (
	"context"
	"time"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
)

// DefinitionActivity summarizes instance activity for one definition,
// used to decorate definition listings.
type DefinitionActivity struct {
	InstanceCount  int
	LastFeedbackAt *time.Time
}

// DefinitionStore persists feedback definitions. Implementations must
// enforce name uniqueness among active, non-deleted definitions per
// workspace at the storage layer (constraint or transactional
// check-then-insert) and return domain.ErrConflict on violation; an
// application-level pre-check alone is racy under concurrent creates.
type DefinitionStore interface {
	// Create inserts a new definition. Returns domain.ErrConflict when an
	// active definition with the same name exists in the workspace.
	Create(ctx context.Context, def *feedback.Definition) error

	// Get returns a definition by id, including soft-deleted ones.
	// Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*feedback.Definition, error)

	// Update persists the full mutated definition.
	Update(ctx context.Context, def *feedback.Definition) error

	// SoftDelete marks the definition inactive with the given deletion time.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// HardDelete removes the definition entirely.
	HardDelete(ctx context.Context, id string) error

	// List returns all non-deleted definitions of a workspace, newest first.
	List(ctx context.Context, workspaceID string) ([]feedback.Definition, error)
}

// InstanceStore persists feedback instances. Implementations must
// enforce the at-most-one-instance constraint for exclusive instances
// (owning definition has allow_multiple=false) at the storage layer and
// return domain.ErrConflict on violation.
type InstanceStore interface {
	// Create inserts a new instance. When exclusive is true (owning
	// definition has allow_multiple=false) the insert conflicts when an
	// instance already exists for the same (definition, entity type,
	// entity id) regardless of author.
	Create(ctx context.Context, inst *feedback.Instance, exclusive bool) error

	// Get returns an instance by id. Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*feedback.Instance, error)

	// Update persists the full mutated instance.
	Update(ctx context.Context, inst *feedback.Instance) error

	// Delete removes the instance. Instances are never soft-deleted.
	Delete(ctx context.Context, id string) error

	// List returns the full filtered set ordered newest first, ignoring
	// the filter's pagination fields. Permission filtering, pagination,
	// and aggregation over the set happen in the service.
	List(ctx context.Context, filter feedback.InstanceFilter) ([]feedback.Instance, error)

	// CountForDefinition returns the number of instances referencing a
	// definition.
	CountForDefinition(ctx context.Context, definitionID string) (int, error)

	// ActivityByDefinition returns per-definition instance counts and the
	// most recent feedback time for a workspace.
	ActivityByDefinition(ctx context.Context, workspaceID string) (map[string]DefinitionActivity, error)

	// ExistsForEntity reports whether any instance of the definition
	// targets the given entity.
	ExistsForEntity(ctx context.Context, definitionID string, entityType feedback.Scope, entityID string) (bool, error)
}
