package feedback

import (
	"fmt"
	"math"
	"time"
)

// InsightKind classifies a derived observation.
type InsightKind string

const (
	InsightTrend        InsightKind = "trend"
	InsightOutlier      InsightKind = "outlier"
	InsightVerification InsightKind = "verification"
)

// Insight is a higher-level observation derived from recorded feedback.
type Insight struct {
	Kind           InsightKind `json:"kind"`
	DefinitionID   string      `json:"definition_id"`
	DefinitionName string      `json:"definition_name"`
	Message        string      `json:"message"`
}

// Thresholds for insight generation. An insight needs enough data to be
// more signal than noise.
const (
	insightMinSamples    = 5
	trendWindow          = 24 * time.Hour
	trendDelta           = 0.05 // 5% shift counts as a trend
	outlierSigma         = 2.0
	lowVerificationRatio = 0.5
)

// GenerateInsights derives trend, outlier, and verification observations
// for one definition's instance set. It is a pure post-processing step:
// callers may replace or extend it without touching aggregation itself.
func GenerateInsights(def *Definition, instances []Instance, now time.Time) []Insight {
	if len(instances) < insightMinSamples {
		return nil
	}

	var out []Insight

	if IsNumericType(def.Type) {
		nums := numericValues(instances)
		if len(nums) >= insightMinSamples {
			if in := trendInsight(def, instances, now); in != nil {
				out = append(out, *in)
			}
			if in := outlierInsight(def, nums); in != nil {
				out = append(out, *in)
			}
		}
	}

	if in := verificationInsight(def, instances); in != nil {
		out = append(out, *in)
	}

	return out
}

// trendInsight compares the recent average against the overall average.
func trendInsight(def *Definition, instances []Instance, now time.Time) *Insight {
	cutoff := now.Add(-trendWindow)

	var recent, all []float64
	for i := range instances {
		n, ok := asFloat(instances[i].Value)
		if !ok {
			continue
		}
		all = append(all, n)
		if !instances[i].CreatedAt.Before(cutoff) {
			recent = append(recent, n)
		}
	}
	if len(recent) == 0 || len(recent) == len(all) {
		return nil
	}

	overall := mean(all)
	if overall == 0 {
		return nil
	}
	shift := (mean(recent) - overall) / math.Abs(overall)
	if math.Abs(shift) < trendDelta {
		return nil
	}

	direction := "rising"
	if shift < 0 {
		direction = "falling"
	}
	return &Insight{
		Kind:           InsightTrend,
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		Message:        fmt.Sprintf("%s scores are %s: last 24h average %.2f vs overall %.2f", def.Name, direction, mean(recent), overall),
	}
}

// outlierInsight flags values beyond outlierSigma standard deviations.
func outlierInsight(def *Definition, nums []float64) *Insight {
	m := mean(nums)
	sd := stddev(nums, m)
	if sd == 0 {
		return nil
	}

	outliers := 0
	for _, n := range nums {
		if math.Abs(n-m) > outlierSigma*sd {
			outliers++
		}
	}
	if outliers == 0 {
		return nil
	}
	return &Insight{
		Kind:           InsightOutlier,
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		Message:        fmt.Sprintf("%s has %d outlier value(s) beyond %.0f standard deviations", def.Name, outliers, outlierSigma),
	}
}

// verificationInsight flags definitions whose instances are mostly unverified.
func verificationInsight(def *Definition, instances []Instance) *Insight {
	verified := 0
	for i := range instances {
		if instances[i].IsVerified {
			verified++
		}
	}
	ratio := float64(verified) / float64(len(instances))
	if ratio >= lowVerificationRatio {
		return nil
	}
	return &Insight{
		Kind:           InsightVerification,
		DefinitionID:   def.ID,
		DefinitionName: def.Name,
		Message:        fmt.Sprintf("only %.0f%% of %s feedback is verified", ratio*100, def.Name),
	}
}

func mean(nums []float64) float64 {
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

func stddev(nums []float64, m float64) float64 {
	if len(nums) < 2 {
		return 0
	}
	sq := 0.0
	for _, n := range nums {
		sq += (n - m) * (n - m)
	}
	return math.Sqrt(sq / float64(len(nums)-1))
}
