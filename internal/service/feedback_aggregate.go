package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/domain/identity"
)

// defaultAggregateParallel bounds the per-definition fan-out of an
// aggregate request unless overridden via SetAggregateParallel.
const defaultAggregateParallel = 4

// SetAggregateParallel overrides the per-definition fan-out limit.
// Values below 1 are ignored.
func (s *FeedbackService) SetAggregateParallel(n int) {
	if n >= 1 {
		s.aggParallel = n
	}
}

// AggregateFeedback computes the requested statistics for each
// definition × aggregation type × time window combination. Definitions
// are processed concurrently; each one's instance set is loaded once
// and reused across its combinations. Nil results (empty sets, numeric
// statistics over non-numeric types) are dropped. The summary's
// TotalInstances sums each result's data points, so an instance
// contributing to several combinations counts once per contribution.
func (s *FeedbackService) AggregateFeedback(ctx context.Context, caller *identity.Caller, req *feedback.AggregateRequest) (*feedback.AggregateResponse, error) {
	workspaceID := req.WorkspaceID
	if workspaceID == "" {
		workspaceID = caller.WorkspaceID
	}
	if !caller.InWorkspace(workspaceID) {
		return nil, &feedback.PermissionError{Action: "aggregate_feedback", EntityID: workspaceID}
	}

	defs, err := s.aggregationTargets(ctx, caller, workspaceID, req.DefinitionIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	perDef := make([][]feedback.AggregationResult, len(defs))
	perDefInsights := make([][]feedback.Insight, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.aggParallel)

	for i := range defs {
		i := i
		g.Go(func() error {
			def := defs[i]
			set, err := s.permittedInstances(gctx, caller, def, req)
			if err != nil {
				return err
			}

			types := req.Types
			if len(types) == 0 {
				types = def.Aggregation.Types
			}
			if len(types) == 0 {
				types = feedback.DefaultAggregationTypes(def.Type)
			}
			windows := req.TimeWindows
			if len(windows) == 0 {
				windows = def.Aggregation.TimeWindows
			}

			var results []feedback.AggregationResult
			for _, agg := range types {
				if len(windows) == 0 {
					if res := feedback.Aggregate(def, set, agg, nil, now); res != nil {
						results = append(results, *res)
					}
					continue
				}
				for w := range windows {
					if res := feedback.Aggregate(def, set, agg, &windows[w], now); res != nil {
						results = append(results, *res)
					}
				}
			}
			perDef[i] = results

			if req.IncludeStatistics {
				perDefInsights[i] = feedback.GenerateInsights(def, set, now)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &feedback.AggregateResponse{
		Results: []feedback.AggregationResult{},
		Summary: feedback.AggregateSummary{
			Definitions: len(defs),
			GeneratedAt: now,
		},
	}
	for i := range perDef {
		for _, res := range perDef[i] {
			resp.Summary.TotalInstances += res.DataPoints
			resp.Results = append(resp.Results, res)
		}
		resp.Insights = append(resp.Insights, perDefInsights[i]...)
	}
	return resp, nil
}

// GetFeedbackInsights derives insights for every readable definition
// over the feedback recorded against one entity.
func (s *FeedbackService) GetFeedbackInsights(ctx context.Context, caller *identity.Caller, scope feedback.Scope, entityID string) ([]feedback.Insight, error) {
	defs, err := s.aggregationTargets(ctx, caller, caller.WorkspaceID, nil)
	if err != nil {
		return nil, err
	}

	req := &feedback.AggregateRequest{
		WorkspaceID: caller.WorkspaceID,
		EntityType:  scope,
		EntityIDs:   []string{entityID},
	}

	now := s.now()
	insights := []feedback.Insight{}
	for _, def := range defs {
		if def.Scope != scope && def.Scope != feedback.ScopeGlobal {
			continue
		}
		set, err := s.permittedInstances(ctx, caller, def, req)
		if err != nil {
			return nil, err
		}
		insights = append(insights, feedback.GenerateInsights(def, set, now)...)
	}
	return insights, nil
}

// ValidateFeedbackValue reports whether value would pass validation
// against the definition's config, without recording anything.
func (s *FeedbackService) ValidateFeedbackValue(ctx context.Context, definitionID string, value any) (bool, error) {
	def, err := s.loadDefinition(ctx, definitionID)
	if err != nil {
		return false, err
	}
	return feedback.ValidateValue(def, value) == nil, nil
}

// aggregationTargets resolves the definitions an aggregate request
// covers: the explicitly requested ids, or every readable definition in
// the workspace. Unreadable definitions are filtered silently on the
// workspace-wide path and rejected on the explicit path.
func (s *FeedbackService) aggregationTargets(ctx context.Context, caller *identity.Caller, workspaceID string, ids []string) ([]*feedback.Definition, error) {
	if len(ids) > 0 {
		defs := make([]*feedback.Definition, 0, len(ids))
		for _, id := range ids {
			def, err := s.loadDefinition(ctx, id)
			if err != nil {
				return nil, err
			}
			if !feedback.CanReadDefinition(caller, def) {
				return nil, &feedback.PermissionError{Action: "aggregate_feedback", EntityID: id}
			}
			defs = append(defs, def)
		}
		return defs, nil
	}

	all, err := s.defs.List(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defs := make([]*feedback.Definition, 0, len(all))
	for i := range all {
		if !feedback.CanReadDefinition(caller, &all[i]) {
			continue
		}
		defs = append(defs, &all[i])
	}
	return defs, nil
}

// permittedInstances loads one definition's instances matching the
// request and silently drops those the caller may not read.
func (s *FeedbackService) permittedInstances(ctx context.Context, caller *identity.Caller, def *feedback.Definition, req *feedback.AggregateRequest) ([]feedback.Instance, error) {
	filter := feedback.InstanceFilter{
		WorkspaceID:  def.WorkspaceID,
		DefinitionID: def.ID,
		EntityType:   req.EntityType,
		EntityIDs:    req.EntityIDs,
	}
	all, err := s.insts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list instances for %s: %w", def.ID, err)
	}

	set := all[:0]
	for i := range all {
		if feedback.CanReadInstance(caller, &all[i], def) {
			set = append(set, all[i])
		}
	}
	return set, nil
}
