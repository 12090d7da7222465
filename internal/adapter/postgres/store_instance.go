package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/port/store"
)

// InstanceStore implements store.InstanceStore on PostgreSQL. The
// dynamically typed value and the source/metadata blocks live in JSONB;
// the partial unique index over exclusive rows enforces the
// one-instance-per-entity constraint for allow_multiple=false
// definitions.
type InstanceStore struct {
	pool *pgxpool.Pool
}

// NewInstanceStore creates an InstanceStore backed by the given pool.
func NewInstanceStore(pool *pgxpool.Pool) *InstanceStore {
	return &InstanceStore{pool: pool}
}

const instanceColumns = `id, definition_id, definition_name, workspace_id,
	entity_type, entity_id, value, confidence, source, metadata,
	is_verified, verified_by, verified_at, project_id, experiment_id,
	created_at, updated_at`

// Create inserts a new instance. Exclusive rows conflict when the
// target entity already has an instance of the same definition,
// whatever flag that instance was inserted with.
func (s *InstanceStore) Create(ctx context.Context, inst *feedback.Instance, exclusive bool) error {
	cols, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO feedback_instances
			(id, definition_id, definition_name, workspace_id,
			 entity_type, entity_id, value, confidence, source, metadata,
			 is_verified, verified_by, verified_at, project_id, experiment_id,
			 exclusive, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	args := []any{
		inst.ID, inst.DefinitionID, inst.DefinitionName, inst.WorkspaceID,
		string(inst.EntityType), inst.EntityID,
		cols.value, inst.Confidence, cols.source, cols.metadata,
		inst.IsVerified, inst.VerifiedBy, inst.VerifiedAt,
		inst.ProjectID, inst.ExperimentID,
		exclusive, inst.CreatedAt, inst.UpdatedAt,
	}

	if !exclusive {
		if _, err := s.pool.Exec(ctx, q, args...); err != nil {
			return conflictWrap(err, "create instance for definition %s", inst.DefinitionID)
		}
		return nil
	}

	// An exclusive insert first marks any rows already on the entity
	// exclusive. Such rows predate a switch of the definition to
	// allow_multiple=false and carry exclusive = FALSE, so the partial
	// unique index alone would not see them. After the flip either the
	// UPDATE or the INSERT collides on the index, which makes the
	// one-instance-per-entity constraint hold under concurrency.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create instance for definition %s: %w", inst.DefinitionID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE feedback_instances SET exclusive = TRUE
		  WHERE definition_id = $1 AND entity_type = $2 AND entity_id = $3 AND NOT exclusive`,
		inst.DefinitionID, string(inst.EntityType), inst.EntityID)
	if err != nil {
		return conflictWrap(err, "create instance for definition %s", inst.DefinitionID)
	}
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return conflictWrap(err, "create instance for definition %s", inst.DefinitionID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("create instance for definition %s: %w", inst.DefinitionID, err)
	}
	return nil
}

// Get returns an instance by id.
func (s *InstanceStore) Get(ctx context.Context, id string) (*feedback.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM feedback_instances WHERE id = $1`, id)

	inst, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance %s", id)
	}
	return inst, nil
}

// Update persists the full mutated instance.
func (s *InstanceStore) Update(ctx context.Context, inst *feedback.Instance) error {
	cols, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	const q = `
		UPDATE feedback_instances
		SET value = $2, confidence = $3, source = $4, metadata = $5,
			is_verified = $6, verified_by = $7, verified_at = $8,
			updated_at = $9
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		inst.ID, cols.value, inst.Confidence, cols.source, cols.metadata,
		inst.IsVerified, inst.VerifiedBy, inst.VerifiedAt, inst.UpdatedAt,
	)
	return execExpectOne(tag, err, "update instance %s", inst.ID)
}

// Delete removes the instance.
func (s *InstanceStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feedback_instances WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete instance %s", id)
}

// List returns the full filtered set ordered newest first. Pagination
// fields of the filter are ignored here.
func (s *InstanceStore) List(ctx context.Context, filter feedback.InstanceFilter) ([]feedback.Instance, error) {
	q, args := buildInstanceQuery(filter)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var insts []feedback.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		insts = append(insts, *inst)
	}
	return insts, rows.Err()
}

// CountForDefinition returns the number of instances referencing a
// definition.
func (s *InstanceStore) CountForDefinition(ctx context.Context, definitionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM feedback_instances WHERE definition_id = $1`,
		definitionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count instances for definition %s: %w", definitionID, err)
	}
	return count, nil
}

// ActivityByDefinition returns per-definition instance counts and the
// most recent feedback time for a workspace.
func (s *InstanceStore) ActivityByDefinition(ctx context.Context, workspaceID string) (map[string]store.DefinitionActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition_id, COUNT(*), MAX(created_at)
		 FROM feedback_instances
		 WHERE workspace_id = $1
		 GROUP BY definition_id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("definition activity: %w", err)
	}
	defer rows.Close()

	activity := make(map[string]store.DefinitionActivity)
	for rows.Next() {
		var (
			id   string
			act  store.DefinitionActivity
			last time.Time
		)
		if err := rows.Scan(&id, &act.InstanceCount, &last); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		act.LastFeedbackAt = &last
		activity[id] = act
	}
	return activity, rows.Err()
}

// ExistsForEntity reports whether any instance of the definition
// targets the given entity.
func (s *InstanceStore) ExistsForEntity(ctx context.Context, definitionID string, entityType feedback.Scope, entityID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM feedback_instances
			WHERE definition_id = $1 AND entity_type = $2 AND entity_id = $3
		 )`, definitionID, string(entityType), entityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists for entity: %w", err)
	}
	return exists, nil
}

// buildInstanceQuery translates an InstanceFilter into a parameterized
// SELECT. Numeric range filters only match rows whose JSON value is a
// number; categorical value filters compare the scalar text form.
func buildInstanceQuery(filter feedback.InstanceFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = "+arg(filter.WorkspaceID))
	}
	if filter.DefinitionID != "" {
		where = append(where, "definition_id = "+arg(filter.DefinitionID))
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = "+arg(string(filter.EntityType)))
	}
	if len(filter.EntityIDs) > 0 {
		where = append(where, "entity_id = ANY("+arg(filter.EntityIDs)+")")
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = "+arg(filter.ProjectID))
	}
	if filter.ExperimentID != "" {
		where = append(where, "experiment_id = "+arg(filter.ExperimentID))
	}
	if filter.MinValue != nil {
		where = append(where,
			"jsonb_typeof(value) = 'number' AND (value #>> '{}')::numeric >= "+arg(*filter.MinValue))
	}
	if filter.MaxValue != nil {
		where = append(where,
			"jsonb_typeof(value) = 'number' AND (value #>> '{}')::numeric <= "+arg(*filter.MaxValue))
	}
	if len(filter.Values) > 0 {
		where = append(where, "value #>> '{}' = ANY("+arg(filter.Values)+")")
	}
	if filter.SourceKind != "" {
		where = append(where, "source->>'kind' = "+arg(string(filter.SourceKind)))
	}
	if filter.UserID != "" {
		where = append(where, "source->>'user_id' = "+arg(filter.UserID))
	}
	if filter.Verified != nil {
		where = append(where, "is_verified = "+arg(*filter.Verified))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= "+arg(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "created_at <= "+arg(*filter.Until))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		p := arg(pattern)
		where = append(where, "("+strings.Join([]string{
			"definition_name ILIKE " + p,
			"entity_id ILIKE " + p,
			"source->>'user_name' ILIKE " + p,
			"value #>> '{}' ILIKE " + p,
			"metadata->>'tags' ILIKE " + p,
		}, " OR ")+")")
	}

	q := `SELECT ` + instanceColumns + ` FROM feedback_instances`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	return q, args
}

// instanceJSON holds the JSONB column payloads of one instance row.
type instanceJSON struct {
	value    []byte
	source   []byte
	metadata []byte
}

func marshalInstance(inst *feedback.Instance) (*instanceJSON, error) {
	var (
		cols instanceJSON
		err  error
	)
	if cols.value, err = json.Marshal(inst.Value); err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	if cols.source, err = json.Marshal(inst.Source); err != nil {
		return nil, fmt.Errorf("marshal source: %w", err)
	}
	if cols.metadata, err = json.Marshal(inst.Metadata); err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &cols, nil
}

func scanInstance(row scannable) (*feedback.Instance, error) {
	var (
		inst       feedback.Instance
		entityType string
		cols       instanceJSON
	)
	if err := row.Scan(
		&inst.ID, &inst.DefinitionID, &inst.DefinitionName, &inst.WorkspaceID,
		&entityType, &inst.EntityID,
		&cols.value, &inst.Confidence, &cols.source, &cols.metadata,
		&inst.IsVerified, &inst.VerifiedBy, &inst.VerifiedAt,
		&inst.ProjectID, &inst.ExperimentID,
		&inst.CreatedAt, &inst.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inst.EntityType = feedback.Scope(entityType)

	if err := json.Unmarshal(cols.value, &inst.Value); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	if err := json.Unmarshal(cols.source, &inst.Source); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	if err := json.Unmarshal(cols.metadata, &inst.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &inst, nil
}
