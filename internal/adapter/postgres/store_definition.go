package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
)

// DefinitionStore implements store.DefinitionStore on PostgreSQL.
// Nested config/validation/aggregation/metadata/permissions are stored
// as JSONB and decoded here; callers only ever see structured types.
type DefinitionStore struct {
	pool *pgxpool.Pool
}

// NewDefinitionStore creates a DefinitionStore backed by the given pool.
func NewDefinitionStore(pool *pgxpool.Pool) *DefinitionStore {
	return &DefinitionStore{pool: pool}
}

const definitionColumns = `id, workspace_id, name, display_name, description, type, scope,
	config, validation, aggregation, is_active, is_required, allow_multiple,
	metadata, permissions, created_at, updated_at, deleted_at`

// Create inserts a new definition. The partial unique index on
// (workspace_id, name) over active rows makes concurrent duplicate
// creates lose deterministically with domain.ErrConflict.
func (s *DefinitionStore) Create(ctx context.Context, def *feedback.Definition) error {
	cols, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO feedback_definitions
			(id, workspace_id, name, display_name, description, type, scope,
			 config, validation, aggregation, is_active, is_required, allow_multiple,
			 metadata, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = s.pool.Exec(ctx, q,
		def.ID, def.WorkspaceID, def.Name, def.DisplayName, def.Description,
		string(def.Type), string(def.Scope),
		cols.config, cols.validation, cols.aggregation,
		def.IsActive, def.IsRequired, def.AllowMultiple,
		cols.metadata, cols.permissions,
		def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create definition %s", def.Name)
	}
	return nil
}

// Get returns a definition by id, including soft-deleted ones.
func (s *DefinitionStore) Get(ctx context.Context, id string) (*feedback.Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM feedback_definitions WHERE id = $1`, id)

	def, err := scanDefinition(row)
	if err != nil {
		return nil, notFoundWrap(err, "get definition %s", id)
	}
	return def, nil
}

// Update persists the full mutated definition.
func (s *DefinitionStore) Update(ctx context.Context, def *feedback.Definition) error {
	cols, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	const q = `
		UPDATE feedback_definitions
		SET display_name = $2, description = $3, type = $4, scope = $5,
			config = $6, validation = $7, aggregation = $8,
			is_active = $9, is_required = $10, allow_multiple = $11,
			metadata = $12, permissions = $13, updated_at = $14
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		def.ID, def.DisplayName, def.Description, string(def.Type), string(def.Scope),
		cols.config, cols.validation, cols.aggregation,
		def.IsActive, def.IsRequired, def.AllowMultiple,
		cols.metadata, cols.permissions, def.UpdatedAt,
	)
	return execExpectOne(tag, err, "update definition %s", def.ID)
}

// SoftDelete marks the definition inactive with a deletion timestamp.
func (s *DefinitionStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feedback_definitions SET is_active = FALSE, deleted_at = $2, updated_at = $2 WHERE id = $1`,
		id, at)
	return execExpectOne(tag, err, "soft delete definition %s", id)
}

// HardDelete removes the definition entirely. When an instance still
// references it the restricting foreign key rejects the delete and the
// error carries domain.ErrConflict, so the caller can fall back to a
// soft delete.
func (s *DefinitionStore) HardDelete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feedback_definitions WHERE id = $1`, id)
	if err != nil {
		return referencedWrap(err, "hard delete definition %s", id)
	}
	return execExpectOne(tag, err, "hard delete definition %s", id)
}

// List returns all non-deleted definitions of a workspace, newest first.
func (s *DefinitionStore) List(ctx context.Context, workspaceID string) ([]feedback.Definition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM feedback_definitions
		 WHERE workspace_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []feedback.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// definitionJSON holds the JSONB column payloads of one definition row.
type definitionJSON struct {
	config      []byte
	validation  []byte
	aggregation []byte
	metadata    []byte
	permissions []byte
}

func marshalDefinition(def *feedback.Definition) (*definitionJSON, error) {
	var (
		cols definitionJSON
		err  error
	)
	if cols.config, err = json.Marshal(def.Config); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if cols.validation, err = json.Marshal(def.Validation); err != nil {
		return nil, fmt.Errorf("marshal validation: %w", err)
	}
	if cols.aggregation, err = json.Marshal(def.Aggregation); err != nil {
		return nil, fmt.Errorf("marshal aggregation: %w", err)
	}
	if cols.metadata, err = json.Marshal(def.Metadata); err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if cols.permissions, err = json.Marshal(def.Permissions); err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	return &cols, nil
}

func scanDefinition(row scannable) (*feedback.Definition, error) {
	var (
		def        feedback.Definition
		typ, scope string
		cols       definitionJSON
	)
	if err := row.Scan(
		&def.ID, &def.WorkspaceID, &def.Name, &def.DisplayName, &def.Description,
		&typ, &scope,
		&cols.config, &cols.validation, &cols.aggregation,
		&def.IsActive, &def.IsRequired, &def.AllowMultiple,
		&cols.metadata, &cols.permissions,
		&def.CreatedAt, &def.UpdatedAt, &def.DeletedAt,
	); err != nil {
		return nil, err
	}

	def.Type = feedback.Type(typ)
	def.Scope = feedback.Scope(scope)

	if err := json.Unmarshal(cols.config, &def.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(cols.validation, &def.Validation); err != nil {
		return nil, fmt.Errorf("unmarshal validation: %w", err)
	}
	if err := json.Unmarshal(cols.aggregation, &def.Aggregation); err != nil {
		return nil, fmt.Errorf("unmarshal aggregation: %w", err)
	}
	if err := json.Unmarshal(cols.metadata, &def.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(cols.permissions, &def.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return &def, nil
}
