package feedback

import (
	"fmt"

	"github.com/agentlens/feedback-engine/internal/domain"
)

// DefinitionError reports a structural problem with a definition,
// naming the offending field.
type DefinitionError struct {
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("feedback definition: %s", e.Message)
	}
	return fmt.Sprintf("feedback definition field %q: %s", e.Field, e.Message)
}

func (e *DefinitionError) Unwrap() error { return domain.ErrValidation }

// ValidationError reports a value that fails a definition's type/config
// validation, or a business-rule violation such as a duplicate instance
// where allow_multiple is false.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("feedback validation: %s", e.Message)
	}
	return fmt.Sprintf("feedback validation field %q: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// PermissionError reports a denied action on an entity.
type PermissionError struct {
	Action   string
	EntityID string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("feedback permission: %s denied on %s", e.Action, e.EntityID)
}

func (e *PermissionError) Unwrap() error { return domain.ErrPermission }

// NotFoundError reports a missing feedback instance.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("feedback instance %s: not found", e.ID)
}

func (e *NotFoundError) Unwrap() error { return domain.ErrNotFound }

// DefinitionNotFoundError reports a missing feedback definition.
type DefinitionNotFoundError struct {
	ID string
}

func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("feedback definition %s: not found", e.ID)
}

func (e *DefinitionNotFoundError) Unwrap() error { return domain.ErrNotFound }
