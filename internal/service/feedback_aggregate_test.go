package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/domain/identity"
)

func seedNumericFeedback(t *testing.T, fx *fixture, defID string, values ...float64) {
	t.Helper()
	for i, v := range values {
		_, err := fx.svc.CreateFeedback(context.Background(), fx.editor, instReq(defID, fmt.Sprintf("tr-%d", i), v))
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestAggregateFeedback(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	def, err := fx.svc.CreateDefinition(ctx, fx.editor, numericalReq("quality"))
	if err != nil {
		t.Fatal(err)
	}
	seedNumericFeedback(t, fx, def.ID, 2, 4, 6)

	resp, err := fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{
		DefinitionIDs: []string{def.ID},
		Types:         []feedback.AggregationType{feedback.AggAverage, feedback.AggCount},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	byType := map[feedback.AggregationType]feedback.AggregationResult{}
	for _, r := range resp.Results {
		byType[r.Type] = r
	}
	if avg := byType[feedback.AggAverage]; avg.Value == nil || *avg.Value != 4 {
		t.Errorf("average = %+v, want 4", avg.Value)
	}
	if cnt := byType[feedback.AggCount]; cnt.Value == nil || *cnt.Value != 3 {
		t.Errorf("count = %+v, want 3", cnt.Value)
	}

	// TotalInstances sums data points across results: 3 (average) + 3
	// (count). The double-counting is the defined semantics.
	if resp.Summary.TotalInstances != 6 {
		t.Errorf("total instances = %d, want 6 (data points, not distinct instances)", resp.Summary.TotalInstances)
	}
	if resp.Summary.Definitions != 1 {
		t.Errorf("definitions = %d, want 1", resp.Summary.Definitions)
	}
}

func TestAggregateFeedbackDefaultsToDefinitionSettings(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	// No explicit types in the request: the definition's configured
	// (defaulted) aggregation types apply.
	def, err := fx.svc.CreateDefinition(ctx, fx.editor, numericalReq("quality"))
	if err != nil {
		t.Fatal(err)
	}
	seedNumericFeedback(t, fx, def.ID, 5)

	resp, err := fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{DefinitionIDs: []string{def.ID}})
	if err != nil {
		t.Fatal(err)
	}
	// numerical defaults: average, min, max, count
	if len(resp.Results) != 4 {
		t.Errorf("results = %d, want 4", len(resp.Results))
	}
}

func TestAggregateFeedbackTimeWindows(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	def, err := fx.svc.CreateDefinition(ctx, fx.editor, numericalReq("quality"))
	if err != nil {
		t.Fatal(err)
	}
	seedNumericFeedback(t, fx, def.ID, 2, 4)

	resp, err := fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{
		DefinitionIDs: []string{def.ID},
		Types:         []feedback.AggregationType{feedback.AggCount},
		TimeWindows: []feedback.TimeWindow{
			{Name: "1h", Label: "Last hour", Duration: time.Hour},
			{Name: "24h", Label: "Last day", Duration: 24 * time.Hour},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// One count result per window; both windows cover the fresh instances.
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2 (one per window)", len(resp.Results))
	}
	names := map[string]bool{}
	for _, r := range resp.Results {
		names[r.Window] = true
	}
	if !names["1h"] || !names["24h"] {
		t.Errorf("window names missing: %v", names)
	}
}

func TestAggregateFeedbackNumericOverCategoricalDropped(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	def, err := fx.svc.CreateDefinition(ctx, fx.editor, &feedback.CreateDefinitionRequest{
		Name:        "sentiment",
		DisplayName: "Sentiment",
		Type:        feedback.TypeCategorical,
		Scope:       feedback.ScopeTrace,
		Config: feedback.Config{Categorical: &feedback.CategoricalConfig{
			Options: []feedback.CategoricalOption{{Value: "good"}, {Value: "bad"}},
		}},
		AllowMultiple: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range []string{"good", "good", "bad"} {
		if _, err := fx.svc.CreateFeedback(ctx, fx.editor, instReq(def.ID, fmt.Sprintf("tr-%d", i), v)); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{
		DefinitionIDs: []string{def.ID},
		Types:         []feedback.AggregationType{feedback.AggAverage, feedback.AggDistribution},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The average over a categorical type yields no result; only the
	// distribution survives.
	if len(resp.Results) != 1 || resp.Results[0].Type != feedback.AggDistribution {
		t.Fatalf("results = %+v, want a single distribution", resp.Results)
	}
	d := resp.Results[0].Distribution
	if d == nil || d.Total != 3 || len(d.Buckets) != 2 {
		t.Errorf("distribution = %+v", d)
	}
}

func TestAggregateFeedbackCrossWorkspaceDenied(t *testing.T) {
	fx := newFixture()

	outsider := &identity.Caller{ID: "x", Role: identity.RoleAdmin, WorkspaceID: "ws2"}
	_, err := fx.svc.AggregateFeedback(context.Background(), outsider, &feedback.AggregateRequest{WorkspaceID: "ws1"})
	var perr *feedback.PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PermissionError, got %v", err)
	}
}

func TestAggregateFeedbackInsights(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	def, err := fx.svc.CreateDefinition(ctx, fx.editor, numericalReq("quality"))
	if err != nil {
		t.Fatal(err)
	}
	seedNumericFeedback(t, fx, def.ID, 5, 5, 5, 5, 5, 5)

	resp, err := fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{
		DefinitionIDs:     []string{def.ID},
		Types:             []feedback.AggregationType{feedback.AggCount},
		IncludeStatistics: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Six unverified instances trip the verification insight.
	found := false
	for _, in := range resp.Insights {
		if in.Kind == feedback.InsightVerification && in.DefinitionID == def.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a verification insight, got %+v", resp.Insights)
	}

	// Without IncludeStatistics no insights are derived.
	resp, err = fx.svc.AggregateFeedback(ctx, fx.editor, &feedback.AggregateRequest{
		DefinitionIDs: []string{def.ID},
		Types:         []feedback.AggregationType{feedback.AggCount},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Insights) != 0 {
		t.Errorf("insights = %+v, want none", resp.Insights)
	}
}

func TestGetFeedbackInsights(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	req := numericalReq("quality")
	req.AllowMultiple = true
	def, err := fx.svc.CreateDefinition(ctx, fx.editor, req)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 6; n++ {
		if _, err := fx.svc.CreateFeedback(ctx, fx.editor, instReq(def.ID, "tr-1", 5.0)); err != nil {
			t.Fatal(err)
		}
	}

	insights, err := fx.svc.GetFeedbackInsights(ctx, fx.editor, feedback.ScopeTrace, "tr-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) == 0 {
		t.Error("expected insights for entity with unverified feedback")
	}

	// A different entity has no feedback and therefore no insights.
	insights, err = fx.svc.GetFeedbackInsights(ctx, fx.editor, feedback.ScopeTrace, "tr-other")
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 0 {
		t.Errorf("insights = %+v, want none", insights)
	}
}
