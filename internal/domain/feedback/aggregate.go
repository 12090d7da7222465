package feedback

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Bucket is one value group of a distribution.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Distribution is a bucketed count per raw value.
type Distribution struct {
	Buckets []Bucket `json:"buckets"`
	Total   int      `json:"total"`
}

// AggregationResult is one computed statistic over a set of instances.
// Value is set for count/average/min/max; Distribution for distribution.
type AggregationResult struct {
	DefinitionID   string          `json:"definition_id"`
	DefinitionName string          `json:"definition_name"`
	Type           AggregationType `json:"type"`
	Window         string          `json:"window,omitempty"`
	WindowLabel    string          `json:"window_label,omitempty"`
	Value          *float64        `json:"value,omitempty"`
	Distribution   *Distribution   `json:"distribution,omitempty"`
	DataPoints     int             `json:"data_points"`
}

// Aggregate computes one statistic over instances of a definition. A
// non-nil window narrows the set to instances created within
// [now-window.Duration, now]. It returns nil when the (windowed) set is
// empty or when a numeric statistic is requested for a non-numeric
// definition type; callers drop nil results from their output.
func Aggregate(def *Definition, instances []Instance, aggType AggregationType, window *TimeWindow, now time.Time) *AggregationResult {
	set := instances
	if window != nil {
		cutoff := now.Add(-window.Duration)
		set = nil
		for i := range instances {
			if !instances[i].CreatedAt.Before(cutoff) && !instances[i].CreatedAt.After(now) {
				set = append(set, instances[i])
			}
		}
	}
	if len(set) == 0 {
		return nil
	}

	res := &AggregationResult{
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		Type:           aggType,
	}
	if window != nil {
		res.Window = window.Name
		res.WindowLabel = window.Label
	}

	switch aggType {
	case AggCount:
		v := float64(len(set))
		res.Value = &v
		res.DataPoints = len(set)

	case AggAverage, AggMin, AggMax:
		if !IsNumericType(def.Type) {
			return nil
		}
		nums := numericValues(set)
		if len(nums) == 0 {
			return nil
		}
		v := numericStat(aggType, nums)
		res.Value = &v
		res.DataPoints = len(nums)

	case AggDistribution:
		res.Distribution = distribute(set)
		res.DataPoints = len(set)

	default:
		return nil
	}

	return res
}

// numericValues extracts the numeric payloads of a set, skipping any
// instance whose value is not numeric.
func numericValues(set []Instance) []float64 {
	nums := make([]float64, 0, len(set))
	for i := range set {
		if n, ok := asFloat(set[i].Value); ok {
			nums = append(nums, n)
		}
	}
	return nums
}

func numericStat(aggType AggregationType, nums []float64) float64 {
	switch aggType {
	case AggAverage:
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums))
	case AggMin:
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m
	default: // AggMax
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m
	}
}

// distribute groups instances by raw value. Buckets are sorted by count
// descending, ties broken by value, so output is deterministic.
func distribute(set []Instance) *Distribution {
	counts := make(map[string]int)
	for i := range set {
		counts[bucketKey(set[i].Value)]++
	}

	buckets := make([]Bucket, 0, len(counts))
	for v, c := range counts {
		buckets = append(buckets, Bucket{Value: v, Count: c})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})

	return &Distribution{Buckets: buckets, Total: len(set)}
}

// bucketKey renders a raw value as a stable distribution key. Multi-select
// values group by the joined option list.
func bucketKey(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		if elems, ok := asStringSlice(value); ok {
			return strings.Join(elems, ",")
		}
		return fmt.Sprintf("%v", v)
	}
}
