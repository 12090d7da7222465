package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentlens/feedback-engine/internal/domain"
	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/domain/identity"
	"github.com/agentlens/feedback-engine/internal/port/cache"
	"github.com/agentlens/feedback-engine/internal/port/messagequeue"
	"github.com/agentlens/feedback-engine/internal/port/store"
	"github.com/agentlens/feedback-engine/internal/resilience"
)

// definitionCacheTTL bounds staleness of the definition read-through
// cache. Mutations invalidate eagerly; the TTL only covers cross-node
// drift.
const definitionCacheTTL = time.Minute

// Event publishing is best-effort; when the broker keeps failing the
// breaker stops us from paying a publish timeout on every mutation.
const (
	publishMaxFailures = 5
	publishRetryAfter  = 30 * time.Second
)

// FeedbackService orchestrates definition and instance lifecycles,
// permission checks, value validation, and aggregation. It is stateless
// between calls; all durable state lives behind the store ports.
type FeedbackService struct {
	defs        store.DefinitionStore
	insts       store.InstanceStore
	cache       cache.Cache        // optional
	queue       messagequeue.Queue // optional
	breaker     *resilience.Breaker
	aggParallel int
	now         func() time.Time
}

// NewFeedbackService creates a FeedbackService. Cache and queue may be
// nil; caching and event publishing are then skipped.
func NewFeedbackService(defs store.DefinitionStore, insts store.InstanceStore, c cache.Cache, q messagequeue.Queue) *FeedbackService {
	return &FeedbackService{
		defs:        defs,
		insts:       insts,
		cache:       c,
		queue:       q,
		breaker:     resilience.NewBreaker(publishMaxFailures, publishRetryAfter),
		aggParallel: defaultAggregateParallel,
		now:         time.Now,
	}
}

// CreateDefinition creates a new feedback definition in the caller's
// workspace. Unset aggregation types default per feedback type and
// empty ACLs default to the creating caller. Name uniqueness among
// active definitions is enforced by the store; a conflict surfaces as a
// DefinitionError so concurrent duplicate creates fail deterministically.
func (s *FeedbackService) CreateDefinition(ctx context.Context, caller *identity.Caller, req *feedback.CreateDefinitionRequest) (*feedback.Definition, error) {
	if caller.Role == identity.RoleViewer {
		return nil, &feedback.PermissionError{Action: "create_definition", EntityID: req.Name}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	def := &feedback.Definition{
		ID:            uuid.NewString(),
		WorkspaceID:   caller.WorkspaceID,
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		Type:          req.Type,
		Scope:         req.Scope,
		Config:        req.Config,
		Validation:    req.Validation,
		Aggregation:   req.Aggregation,
		IsActive:      true,
		IsRequired:    req.IsRequired,
		AllowMultiple: req.AllowMultiple,
		Metadata: feedback.Metadata{
			CreatorID:   caller.ID,
			CreatorName: caller.Name,
			Tags:        req.Tags,
			Category:    req.Category,
			Version:     1,
		},
		Permissions: defaultPermissions(req.Permissions, caller.ID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(def.Aggregation.Types) == 0 {
		def.Aggregation.Types = feedback.DefaultAggregationTypes(def.Type)
	}

	if err := s.defs.Create(ctx, def); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &feedback.DefinitionError{Field: "name", Message: fmt.Sprintf("an active definition named %q already exists", req.Name)}
		}
		return nil, fmt.Errorf("create definition: %w", err)
	}

	slog.Info("feedback: definition created", "definition_id", def.ID, "workspace_id", def.WorkspaceID, "name", def.Name, "type", def.Type)
	s.publishDefinitionEvent(ctx, messagequeue.SubjectDefinitionCreated, def, "")
	return def, nil
}

// UpdateDefinition merges the provided fields over the stored
// definition and bumps its version by one. ID, workspace, and creation
// time are immutable. A type change triggers an advisory compatibility
// check against existing instances.
func (s *FeedbackService) UpdateDefinition(ctx context.Context, caller *identity.Caller, id string, req *feedback.UpdateDefinitionRequest) (*feedback.Definition, error) {
	def, err := s.loadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !feedback.CanWriteDefinition(caller, def) {
		return nil, &feedback.PermissionError{Action: "update_definition", EntityID: id}
	}

	if req.Type != nil && *req.Type != def.Type {
		if !feedback.ValidTypes[*req.Type] {
			return nil, &feedback.DefinitionError{Field: "type", Message: "unsupported feedback type"}
		}
		s.checkTypeCompatibility(ctx, def, *req.Type)
		def.Type = *req.Type
	}

	applyDefinitionUpdate(def, req)
	def.Metadata.Version++
	def.UpdatedAt = s.now()

	if err := s.defs.Update(ctx, def); err != nil {
		return nil, fmt.Errorf("update definition: %w", err)
	}

	s.invalidateDefinition(ctx, id)
	slog.Info("feedback: definition updated", "definition_id", id, "version", def.Metadata.Version)
	s.publishDefinitionEvent(ctx, messagequeue.SubjectDefinitionUpdated, def, "")
	return def, nil
}

// DeleteDefinition removes a definition. When instances still reference
// it, the definition is soft-deleted (deactivated with a deletion
// marker) so those instances keep a resolvable schema; otherwise it is
// removed entirely. The returned outcome reports which branch was taken.
func (s *FeedbackService) DeleteDefinition(ctx context.Context, caller *identity.Caller, id string) (feedback.DeleteOutcome, error) {
	def, err := s.loadDefinition(ctx, id)
	if err != nil {
		return "", err
	}
	if !feedback.CanDeleteDefinition(caller, def) {
		return "", &feedback.PermissionError{Action: "delete_definition", EntityID: id}
	}

	refs, err := s.insts.CountForDefinition(ctx, id)
	if err != nil {
		return "", fmt.Errorf("count instances for definition %s: %w", id, err)
	}

	outcome := feedback.DeleteHard
	if refs > 0 {
		outcome = feedback.DeleteSoft
		if err := s.defs.SoftDelete(ctx, id, s.now()); err != nil {
			return "", fmt.Errorf("soft delete definition: %w", err)
		}
	} else {
		err := s.defs.HardDelete(ctx, id)
		if errors.Is(err, domain.ErrConflict) {
			// An instance landed after the reference count. The store
			// refuses to orphan it; keep its schema resolvable instead.
			outcome = feedback.DeleteSoft
			err = s.defs.SoftDelete(ctx, id, s.now())
		}
		if err != nil {
			return "", fmt.Errorf("delete definition: %w", err)
		}
	}

	s.invalidateDefinition(ctx, id)
	slog.Info("feedback: definition deleted", "definition_id", id, "outcome", outcome, "referencing_instances", refs)
	s.publishDefinitionEvent(ctx, messagequeue.SubjectDefinitionDeleted, def, outcome)
	return outcome, nil
}

// GetDefinition returns a definition the caller may read.
func (s *FeedbackService) GetDefinition(ctx context.Context, caller *identity.Caller, id string) (*feedback.Definition, error) {
	def, err := s.loadDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !feedback.CanReadDefinition(caller, def) {
		return nil, &feedback.PermissionError{Action: "read_definition", EntityID: id}
	}
	return def, nil
}

// ListDefinitions returns the workspace's definitions the caller may
// read, decorated with instance counts and last feedback times.
// Unreadable definitions are filtered silently.
func (s *FeedbackService) ListDefinitions(ctx context.Context, caller *identity.Caller, workspaceID string) ([]feedback.DefinitionSummary, error) {
	if !caller.InWorkspace(workspaceID) {
		return nil, &feedback.PermissionError{Action: "list_definitions", EntityID: workspaceID}
	}

	defs, err := s.defs.List(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	activity, err := s.insts.ActivityByDefinition(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("definition activity: %w", err)
	}

	summaries := make([]feedback.DefinitionSummary, 0, len(defs))
	for i := range defs {
		if !feedback.CanReadDefinition(caller, &defs[i]) {
			continue
		}
		sum := feedback.DefinitionSummary{Definition: defs[i]}
		if act, ok := activity[defs[i].ID]; ok {
			sum.InstanceCount = act.InstanceCount
			sum.LastFeedbackAt = act.LastFeedbackAt
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// checkTypeCompatibility warns when a type change would strand existing
// instances. Advisory only: the update proceeds either way, matching
// the permissive semantics of schema evolution here.
func (s *FeedbackService) checkTypeCompatibility(ctx context.Context, def *feedback.Definition, newType feedback.Type) {
	refs, err := s.insts.CountForDefinition(ctx, def.ID)
	if err != nil {
		slog.Warn("feedback: type compatibility check failed", "definition_id", def.ID, "error", err)
		return
	}
	if refs > 0 {
		slog.Warn("feedback: definition type changed with existing instances",
			"definition_id", def.ID, "old_type", def.Type, "new_type", newType, "instances", refs)
	}
}

// loadDefinition fetches a definition through the read-through cache.
func (s *FeedbackService) loadDefinition(ctx context.Context, id string) (*feedback.Definition, error) {
	key := definitionCacheKey(id)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var def feedback.Definition
			if err := json.Unmarshal(data, &def); err == nil {
				return &def, nil
			}
		}
	}

	def, err := s.defs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &feedback.DefinitionNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("get definition %s: %w", id, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(def); err == nil {
			_ = s.cache.Set(ctx, key, data, definitionCacheTTL)
		}
	}
	return def, nil
}

func (s *FeedbackService) invalidateDefinition(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, definitionCacheKey(id))
	}
}

func definitionCacheKey(id string) string {
	return "feedback:definition:" + id
}

// defaultPermissions fills each empty ACL with the creating caller.
func defaultPermissions(p *feedback.Permissions, callerID string) feedback.Permissions {
	out := feedback.Permissions{}
	if p != nil {
		out = *p
	}
	if len(out.CanRead) == 0 {
		out.CanRead = []string{callerID}
	}
	if len(out.CanWrite) == 0 {
		out.CanWrite = []string{callerID}
	}
	if len(out.CanDelete) == 0 {
		out.CanDelete = []string{callerID}
	}
	return out
}

// applyDefinitionUpdate merges non-nil request fields over the stored
// definition. Type is handled by the caller because it needs the
// compatibility check.
func applyDefinitionUpdate(def *feedback.Definition, req *feedback.UpdateDefinitionRequest) {
	if req.DisplayName != nil {
		def.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.Config != nil {
		def.Config = *req.Config
	}
	if req.Validation != nil {
		def.Validation = *req.Validation
	}
	if req.Aggregation != nil {
		def.Aggregation = *req.Aggregation
		if len(def.Aggregation.Types) == 0 {
			def.Aggregation.Types = feedback.DefaultAggregationTypes(def.Type)
		}
	}
	if req.IsActive != nil {
		def.IsActive = *req.IsActive
	}
	if req.IsRequired != nil {
		def.IsRequired = *req.IsRequired
	}
	if req.AllowMultiple != nil {
		def.AllowMultiple = *req.AllowMultiple
	}
	if req.Tags != nil {
		def.Metadata.Tags = req.Tags
	}
	if req.Category != nil {
		def.Metadata.Category = *req.Category
	}
	if req.Permissions != nil {
		def.Permissions = *req.Permissions
	}
}

// publishDefinitionEvent emits a lifecycle event, best-effort. Failures
// are logged and never fail the operation.
func (s *FeedbackService) publishDefinitionEvent(ctx context.Context, subject string, def *feedback.Definition, outcome feedback.DeleteOutcome) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.DefinitionEventPayload{
		DefinitionID: def.ID,
		WorkspaceID:  def.WorkspaceID,
		Name:         def.Name,
		Type:         string(def.Type),
		Version:      def.Metadata.Version,
		Outcome:      string(outcome),
	}
	s.publish(ctx, subject, payload)
}

func (s *FeedbackService) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("feedback: marshal event", "subject", subject, "error", err)
		return
	}
	err = s.breaker.Execute(func() error {
		return s.queue.Publish(ctx, subject, data)
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		slog.Debug("feedback: event publishing suspended", "subject", subject)
	case err != nil:
		slog.Warn("feedback: publish event", "subject", subject, "error", err)
	}
}
