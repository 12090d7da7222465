package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/agentlens/feedback-engine/internal/domain"
	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/domain/identity"
	"github.com/agentlens/feedback-engine/internal/port/messagequeue"
)

// CreateFeedback records one scoring event against an entity. The
// instance is stamped as a human source with the caller's identity.
func (s *FeedbackService) CreateFeedback(ctx context.Context, caller *identity.Caller, req *feedback.CreateInstanceRequest) (*feedback.Instance, error) {
	return s.createInstance(ctx, caller, req, "")
}

// BulkCreateFeedback records several instances under one shared batch
// id. Items are processed independently: a failure is captured as an
// indexed error string and never aborts the remaining items.
func (s *FeedbackService) BulkCreateFeedback(ctx context.Context, caller *identity.Caller, req *feedback.BulkCreateRequest) (*feedback.BulkCreateResult, error) {
	result := &feedback.BulkCreateResult{
		BatchID: uuid.NewString(),
		Errors:  []string{},
	}

	for i := range req.Instances {
		if _, err := s.createInstance(ctx, caller, &req.Instances[i], result.BatchID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Instance %d: %v", i, err))
			continue
		}
		result.Created++
	}

	slog.Info("feedback: bulk create finished", "batch_id", result.BatchID, "created", result.Created, "failed", len(result.Errors))
	return result, nil
}

func (s *FeedbackService) createInstance(ctx context.Context, caller *identity.Caller, req *feedback.CreateInstanceRequest, batchID string) (*feedback.Instance, error) {
	def, err := s.loadDefinition(ctx, req.DefinitionID)
	if err != nil {
		return nil, err
	}
	if !caller.InWorkspace(def.WorkspaceID) {
		return nil, &feedback.PermissionError{Action: "create_feedback", EntityID: req.DefinitionID}
	}
	if !def.IsActive {
		return nil, &feedback.DefinitionError{Field: "definition_id", Message: fmt.Sprintf("definition %q is inactive", def.Name)}
	}
	if !feedback.ValidScopes[req.EntityType] {
		return nil, &feedback.ValidationError{Field: "entity_type", Message: "unsupported entity type"}
	}
	if req.EntityID == "" && req.EntityType != feedback.ScopeGlobal {
		return nil, &feedback.ValidationError{Field: "entity_id", Message: "entity_id is required"}
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return nil, &feedback.ValidationError{Field: "confidence", Message: "confidence must be between 0 and 1"}
	}
	if err := feedback.ValidateValue(def, req.Value); err != nil {
		return nil, err
	}

	if !def.AllowMultiple {
		exists, err := s.insts.ExistsForEntity(ctx, def.ID, req.EntityType, req.EntityID)
		if err != nil {
			return nil, fmt.Errorf("check existing feedback: %w", err)
		}
		if exists {
			return nil, multipleNotAllowedErr(def)
		}
	}

	now := s.now()
	inst := &feedback.Instance{
		ID:             uuid.NewString(),
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		WorkspaceID:    def.WorkspaceID,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Value:          req.Value,
		Confidence:     req.Confidence,
		Source: feedback.Source{
			Kind:     feedback.SourceHuman,
			UserID:   caller.ID,
			UserName: caller.Name,
		},
		Metadata: feedback.InstanceMetadata{
			SessionID: req.SessionID,
			BatchID:   batchID,
			Version:   1,
			Tags:      req.Tags,
		},
		ProjectID:    req.ProjectID,
		ExperimentID: req.ExperimentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.insts.Create(ctx, inst, !def.AllowMultiple); err != nil {
		// The storage uniqueness constraint is authoritative; the
		// pre-check above only produces friendlier errors for the
		// common sequential case.
		if errors.Is(err, domain.ErrConflict) {
			return nil, multipleNotAllowedErr(def)
		}
		return nil, fmt.Errorf("create feedback: %w", err)
	}

	slog.Info("feedback: instance created", "instance_id", inst.ID, "definition_id", def.ID, "entity_type", inst.EntityType, "entity_id", inst.EntityID)
	s.publishInstanceEvent(ctx, messagequeue.SubjectInstanceCreated, inst)
	return inst, nil
}

func multipleNotAllowedErr(def *feedback.Definition) error {
	return &feedback.ValidationError{
		Field:   "entity_id",
		Message: fmt.Sprintf("definition %q already has feedback for this entity and does not allow multiple", def.Name),
	}
}

// UpdateFeedback replaces an instance's value after re-validating it
// against the unchanged definition, bumping the instance version.
func (s *FeedbackService) UpdateFeedback(ctx context.Context, caller *identity.Caller, id string, value any) (*feedback.Instance, error) {
	inst, def, err := s.loadInstanceWithDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !feedback.CanEditInstance(caller, inst, def) {
		return nil, &feedback.PermissionError{Action: "update_feedback", EntityID: id}
	}
	if err := feedback.ValidateValue(def, value); err != nil {
		return nil, err
	}

	inst.Value = value
	inst.Metadata.Version++
	inst.UpdatedAt = s.now()

	if err := s.insts.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("update feedback: %w", err)
	}

	slog.Info("feedback: instance updated", "instance_id", id, "version", inst.Metadata.Version)
	s.publishInstanceEvent(ctx, messagequeue.SubjectInstanceUpdated, inst)
	return inst, nil
}

// DeleteFeedback hard-deletes an instance. Instances have no soft-delete
// path.
func (s *FeedbackService) DeleteFeedback(ctx context.Context, caller *identity.Caller, id string) error {
	inst, def, err := s.loadInstanceWithDefinition(ctx, id)
	if err != nil {
		return err
	}
	if !feedback.CanDeleteInstance(caller, inst, def) {
		return &feedback.PermissionError{Action: "delete_feedback", EntityID: id}
	}

	if err := s.insts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}

	slog.Info("feedback: instance deleted", "instance_id", id)
	s.publishInstanceEvent(ctx, messagequeue.SubjectInstanceDeleted, inst)
	return nil
}

// GetFeedback returns a stored instance. Reads here are deliberately
// permissive: instance ids are unguessable UUIDs and read-permission
// filtering is enforced on the list path.
func (s *FeedbackService) GetFeedback(ctx context.Context, id string) (*feedback.Instance, error) {
	inst, err := s.insts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &feedback.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("get feedback %s: %w", id, err)
	}
	return inst, nil
}

// ListFeedback returns one page of instances matching the filter,
// restricted to the caller's workspace and silently filtered to
// instances the caller may read. Aggregations are computed over the
// full filtered, permission-checked set, not just the returned page.
func (s *FeedbackService) ListFeedback(ctx context.Context, caller *identity.Caller, filter feedback.InstanceFilter) (*feedback.InstancePage, error) {
	filter.WorkspaceID = caller.WorkspaceID

	all, err := s.insts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	visible, byDef, err := s.filterReadable(ctx, caller, all)
	if err != nil {
		return nil, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	end := start + limit
	if start > len(visible) {
		start = len(visible)
	}
	if end > len(visible) {
		end = len(visible)
	}

	aggs := s.pageAggregations(byDef)

	return &feedback.InstancePage{
		Instances:    visible[start:end],
		Page:         page,
		Limit:        limit,
		Total:        len(visible),
		Aggregations: aggs,
	}, nil
}

// VerifyFeedback marks an instance as verified by the caller.
// Verification is admin-only and never bumps the instance version.
func (s *FeedbackService) VerifyFeedback(ctx context.Context, caller *identity.Caller, id string) (*feedback.Instance, error) {
	return s.setVerified(ctx, caller, id, true)
}

// UnverifyFeedback clears an instance's verification. Admin-only.
func (s *FeedbackService) UnverifyFeedback(ctx context.Context, caller *identity.Caller, id string) (*feedback.Instance, error) {
	return s.setVerified(ctx, caller, id, false)
}

func (s *FeedbackService) setVerified(ctx context.Context, caller *identity.Caller, id string, verified bool) (*feedback.Instance, error) {
	if !feedback.CanVerify(caller) {
		return nil, &feedback.PermissionError{Action: "verify_feedback", EntityID: id}
	}

	inst, err := s.insts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &feedback.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("get feedback %s: %w", id, err)
	}

	if verified {
		now := s.now()
		inst.IsVerified = true
		inst.VerifiedBy = caller.ID
		inst.VerifiedAt = &now
	} else {
		inst.IsVerified = false
		inst.VerifiedBy = ""
		inst.VerifiedAt = nil
	}

	if err := s.insts.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("update verification: %w", err)
	}

	slog.Info("feedback: verification changed", "instance_id", id, "verified", verified, "by", caller.ID)
	s.publishInstanceEvent(ctx, messagequeue.SubjectInstanceVerified, inst)
	return inst, nil
}

// loadInstanceWithDefinition fetches an instance and its owning
// definition in one step for permission checks.
func (s *FeedbackService) loadInstanceWithDefinition(ctx context.Context, id string) (*feedback.Instance, *feedback.Definition, error) {
	inst, err := s.insts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, &feedback.NotFoundError{ID: id}
		}
		return nil, nil, fmt.Errorf("get feedback %s: %w", id, err)
	}

	def, err := s.loadDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, nil, err
	}
	return inst, def, nil
}

// filterReadable drops instances the caller may not read (silent
// filter) and groups the survivors by definition. Definitions that fail
// to load, e.g. hard-deleted out from under an instance, hide their
// instances rather than failing the listing.
func (s *FeedbackService) filterReadable(ctx context.Context, caller *identity.Caller, all []feedback.Instance) ([]feedback.Instance, map[*feedback.Definition][]feedback.Instance, error) {
	defsByID := make(map[string]*feedback.Definition)
	byDef := make(map[*feedback.Definition][]feedback.Instance)
	visible := make([]feedback.Instance, 0, len(all))

	for i := range all {
		def, ok := defsByID[all[i].DefinitionID]
		if !ok {
			var err error
			def, err = s.loadDefinition(ctx, all[i].DefinitionID)
			if err != nil {
				var nf *feedback.DefinitionNotFoundError
				if errors.As(err, &nf) {
					slog.Warn("feedback: instance references missing definition", "instance_id", all[i].ID, "definition_id", all[i].DefinitionID)
					defsByID[all[i].DefinitionID] = nil
					continue
				}
				return nil, nil, err
			}
			defsByID[all[i].DefinitionID] = def
		}
		if def == nil {
			continue
		}
		if !feedback.CanReadInstance(caller, &all[i], def) {
			continue
		}
		visible = append(visible, all[i])
		byDef[def] = append(byDef[def], all[i])
	}
	return visible, byDef, nil
}

// pageAggregations computes each definition's configured aggregations
// over its full permitted set for the listing response.
func (s *FeedbackService) pageAggregations(byDef map[*feedback.Definition][]feedback.Instance) []feedback.AggregationResult {
	now := s.now()

	var results []feedback.AggregationResult
	for def, set := range byDef {
		if !def.Aggregation.Enabled {
			continue
		}
		types := def.Aggregation.Types
		if len(types) == 0 {
			types = feedback.DefaultAggregationTypes(def.Type)
		}
		for _, agg := range types {
			if res := feedback.Aggregate(def, set, agg, nil, now); res != nil {
				results = append(results, *res)
			}
		}
	}

	// Map iteration order is random; keep output stable.
	sort.Slice(results, func(i, j int) bool {
		if results[i].DefinitionName != results[j].DefinitionName {
			return results[i].DefinitionName < results[j].DefinitionName
		}
		return results[i].Type < results[j].Type
	})
	return results
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = feedback.DefaultPageLimit
	}
	if limit > feedback.MaxPageLimit {
		limit = feedback.MaxPageLimit
	}
	return page, limit
}

func (s *FeedbackService) publishInstanceEvent(ctx context.Context, subject string, inst *feedback.Instance) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.InstanceEventPayload{
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		WorkspaceID:  inst.WorkspaceID,
		EntityType:   string(inst.EntityType),
		EntityID:     inst.EntityID,
		SourceKind:   string(inst.Source.Kind),
		BatchID:      inst.Metadata.BatchID,
		Verified:     inst.IsVerified,
	}
	s.publish(ctx, subject, payload)
}
