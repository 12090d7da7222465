package feedback

import (
	"testing"
	"time"
)

func numInstances(now time.Time, values ...float64) []Instance {
	out := make([]Instance, len(values))
	for i, v := range values {
		out[i] = Instance{Value: v, CreatedAt: now}
	}
	return out
}

func TestAggregateNumericStats(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "quality", Type: TypeNumerical}
	set := numInstances(now, 2, 4, 6)

	tests := []struct {
		agg  AggregationType
		want float64
	}{
		{AggCount, 3},
		{AggAverage, 4},
		{AggMin, 2},
		{AggMax, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			res := Aggregate(def, set, tt.agg, nil, now)
			if res == nil {
				t.Fatal("expected a result")
			}
			if res.Value == nil || *res.Value != tt.want {
				t.Errorf("got %v, want %v", res.Value, tt.want)
			}
			if res.DataPoints != 3 {
				t.Errorf("data points = %d, want 3", res.DataPoints)
			}
		})
	}
}

func TestAggregateEmptySetReturnsNil(t *testing.T) {
	def := &Definition{ID: "d1", Name: "quality", Type: TypeNumerical}

	for _, agg := range []AggregationType{AggCount, AggAverage, AggMin, AggMax, AggDistribution} {
		if res := Aggregate(def, nil, agg, nil, time.Now()); res != nil {
			t.Errorf("%s over empty set: expected nil, got %+v", agg, res)
		}
	}
}

func TestAggregateNumericStatOnNonNumericType(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "sentiment", Type: TypeCategorical}
	set := []Instance{{Value: "good", CreatedAt: now}}

	if res := Aggregate(def, set, AggAverage, nil, now); res != nil {
		t.Errorf("average over categorical: expected nil, got %+v", res)
	}
	if res := Aggregate(def, set, AggCount, nil, now); res == nil {
		t.Error("count over categorical: expected a result")
	}
}

func TestAggregateTimeWindow(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "quality", Type: TypeNumerical}
	set := []Instance{
		{Value: 10.0, CreatedAt: now.Add(-30 * time.Minute)},
		{Value: 2.0, CreatedAt: now.Add(-3 * time.Hour)},
	}
	window := &TimeWindow{Name: "1h", Label: "Last hour", Duration: time.Hour}

	res := Aggregate(def, set, AggAverage, window, now)
	if res == nil {
		t.Fatal("expected a result")
	}
	if *res.Value != 10 {
		t.Errorf("window average = %v, want 10 (old instance must be excluded)", *res.Value)
	}
	if res.Window != "1h" || res.WindowLabel != "Last hour" {
		t.Errorf("window labels not carried: %+v", res)
	}

	// A window covering no instances yields no result.
	narrow := &TimeWindow{Name: "1m", Duration: time.Minute}
	if res := Aggregate(def, set, AggAverage, narrow, now); res != nil {
		t.Errorf("empty window: expected nil, got %+v", res)
	}
}

func TestAggregateDistribution(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "sentiment", Type: TypeCategorical}
	set := []Instance{
		{Value: "good", CreatedAt: now},
		{Value: "good", CreatedAt: now},
		{Value: "bad", CreatedAt: now},
	}

	res := Aggregate(def, set, AggDistribution, nil, now)
	if res == nil || res.Distribution == nil {
		t.Fatal("expected a distribution result")
	}

	d := res.Distribution
	if d.Total != 3 {
		t.Errorf("total = %d, want 3", d.Total)
	}
	if len(d.Buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(d.Buckets))
	}
	if d.Buckets[0].Value != "good" || d.Buckets[0].Count != 2 {
		t.Errorf("first bucket = %+v, want good/2", d.Buckets[0])
	}
	if d.Buckets[1].Value != "bad" || d.Buckets[1].Count != 1 {
		t.Errorf("second bucket = %+v, want bad/1", d.Buckets[1])
	}
}

func TestAggregateDistributionBooleans(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "helpful", Type: TypeBoolean}
	set := []Instance{
		{Value: true, CreatedAt: now},
		{Value: false, CreatedAt: now},
		{Value: true, CreatedAt: now},
	}

	res := Aggregate(def, set, AggDistribution, nil, now)
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Distribution.Buckets[0].Value != "true" || res.Distribution.Buckets[0].Count != 2 {
		t.Errorf("unexpected buckets: %+v", res.Distribution.Buckets)
	}
}

func TestGenerateInsightsVerification(t *testing.T) {
	now := time.Now()
	def := &Definition{ID: "d1", Name: "quality", Type: TypeCategorical}

	set := make([]Instance, 6)
	for i := range set {
		set[i] = Instance{Value: "ok", CreatedAt: now}
	}
	set[0].IsVerified = true

	insights := GenerateInsights(def, set, now)
	found := false
	for _, in := range insights {
		if in.Kind == InsightVerification {
			found = true
		}
	}
	if !found {
		t.Error("expected a verification insight for mostly-unverified feedback")
	}
}

func TestGenerateInsightsNeedsSamples(t *testing.T) {
	def := &Definition{ID: "d1", Name: "quality", Type: TypeNumerical}
	set := numInstances(time.Now(), 1, 2)

	if got := GenerateInsights(def, set, time.Now()); got != nil {
		t.Errorf("expected no insights below sample threshold, got %+v", got)
	}
}

func TestFilterMatches(t *testing.T) {
	now := time.Now()
	inst := &Instance{
		WorkspaceID:    "ws1",
		DefinitionID:   "d1",
		DefinitionName: "quality",
		EntityType:     ScopeTrace,
		EntityID:       "tr-9",
		Value:          7.5,
		Source:         Source{Kind: SourceHuman, UserID: "alice", UserName: "Alice"},
		CreatedAt:      now,
	}

	tests := []struct {
		name   string
		filter InstanceFilter
		want   bool
	}{
		{"empty filter", InstanceFilter{}, true},
		{"workspace match", InstanceFilter{WorkspaceID: "ws1"}, true},
		{"workspace mismatch", InstanceFilter{WorkspaceID: "ws2"}, false},
		{"value range", InstanceFilter{MinValue: floatPtr(5), MaxValue: floatPtr(9)}, true},
		{"value below min", InstanceFilter{MinValue: floatPtr(8)}, false},
		{"entity ids", InstanceFilter{EntityIDs: []string{"tr-9", "tr-10"}}, true},
		{"source kind", InstanceFilter{SourceKind: SourceLLM}, false},
		{"search hit", InstanceFilter{Search: "qual"}, true},
		{"search miss", InstanceFilter{Search: "nope"}, false},
		{"since excludes", InstanceFilter{Since: timePtr(now.Add(time.Minute))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(inst); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
