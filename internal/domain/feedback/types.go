// Package feedback defines the domain model for feedback definitions and
// instances: typed scoring schemas scoped to a workspace, the scoring
// events recorded against them, value validation, the ACL model, and the
// aggregation engine computing statistics over recorded instances.
package feedback

import (
	"time"
)

// Type identifies the value type a definition accepts.
type Type string

const (
	TypeNumerical   Type = "numerical"
	TypeCategorical Type = "categorical"
	TypeBoolean     Type = "boolean"
	TypeText        Type = "text"
	TypeLikertScale Type = "likert_scale"
)

// ValidTypes is the set of all supported feedback types.
var ValidTypes = map[Type]bool{
	TypeNumerical:   true,
	TypeCategorical: true,
	TypeBoolean:     true,
	TypeText:        true,
	TypeLikertScale: true,
}

// Scope identifies the kind of entity feedback attaches to.
type Scope string

const (
	ScopeTrace      Scope = "trace"
	ScopeSpan       Scope = "span"
	ScopeExperiment Scope = "experiment"
	ScopeDataset    Scope = "dataset"
	ScopeModel      Scope = "model"
	ScopeGlobal     Scope = "global"
)

// ValidScopes is the set of all supported feedback scopes.
var ValidScopes = map[Scope]bool{
	ScopeTrace:      true,
	ScopeSpan:       true,
	ScopeExperiment: true,
	ScopeDataset:    true,
	ScopeModel:      true,
	ScopeGlobal:     true,
}

// AggregationType identifies a statistic computed over a set of instances.
type AggregationType string

const (
	AggCount        AggregationType = "count"
	AggAverage      AggregationType = "average"
	AggMin          AggregationType = "min"
	AggMax          AggregationType = "max"
	AggDistribution AggregationType = "distribution"
)

// NumericalConfig holds parameters for numerical definitions.
// Nil bounds mean unbounded on that side.
type NumericalConfig struct {
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	Precision *int     `json:"precision,omitempty"`
	Unit      string   `json:"unit,omitempty"`
}

// CategoricalOption is one selectable value of a categorical definition.
type CategoricalOption struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// CategoricalConfig holds parameters for categorical definitions.
type CategoricalConfig struct {
	Options     []CategoricalOption `json:"options"`
	AllowOther  bool                `json:"allow_other,omitempty"`
	MultiSelect bool                `json:"multi_select,omitempty"`
}

// TextConfig holds length bounds for text definitions.
type TextConfig struct {
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
}

// LikertConfig holds the endpoint range and labels for likert definitions.
// A zero Max means the default 1–10 range.
type LikertConfig struct {
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	MinLabel string `json:"min_label,omitempty"`
	MaxLabel string `json:"max_label,omitempty"`
}

// DefaultLikertMin and DefaultLikertMax bound likert values when the
// definition config does not override the range.
const (
	DefaultLikertMin = 1
	DefaultLikertMax = 10
)

// Config is the type-specific parameter union of a definition. Exactly
// the variant matching the definition's Type is consulted; the others
// are ignored. Boolean definitions carry no parameters.
type Config struct {
	Numerical   *NumericalConfig   `json:"numerical,omitempty"`
	Categorical *CategoricalConfig `json:"categorical,omitempty"`
	Text        *TextConfig        `json:"text,omitempty"`
	Likert      *LikertConfig      `json:"likert,omitempty"`
}

// Rule is a custom validation rule descriptor attached to a definition.
type Rule struct {
	Name    string         `json:"name"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Dependency declares another definition that must co-exist for this
// definition's instances to be meaningful.
type Dependency struct {
	DefinitionName string `json:"definition_name"`
	Reason         string `json:"reason,omitempty"`
}

// Validation holds validation settings for a definition.
type Validation struct {
	Required     bool         `json:"required,omitempty"`
	Rules        []Rule       `json:"rules,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// TimeWindow is a bounded recent-time slice used to scope an aggregation.
type TimeWindow struct {
	Name     string        `json:"name"`
	Label    string        `json:"label,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Aggregation holds aggregation settings for a definition.
type Aggregation struct {
	Enabled     bool              `json:"enable_aggregation"`
	Types       []AggregationType `json:"aggregation_types,omitempty"`
	TimeWindows []TimeWindow      `json:"time_windows,omitempty"`
	GroupBy     []string          `json:"group_by,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// Metadata holds provenance and versioning info for a definition.
type Metadata struct {
	CreatorID   string   `json:"creator_id"`
	CreatorName string   `json:"creator_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`
	Version     int      `json:"version"`
}

// Permissions holds the per-action ACLs of a definition. Entries are
// caller IDs or role strings; membership of either grants the action.
type Permissions struct {
	CanRead   []string `json:"can_read"`
	CanWrite  []string `json:"can_write"`
	CanDelete []string `json:"can_delete"`
}

// Definition is a named, workspace-scoped schema describing what can be
// scored and how recorded scores aggregate.
type Definition struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspace_id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description,omitempty"`
	Type        Type        `json:"type"`
	Scope       Scope       `json:"scope"`
	Config      Config      `json:"config"`
	Validation  Validation  `json:"validation"`
	Aggregation Aggregation `json:"aggregation"`

	IsActive      bool `json:"is_active"`
	IsRequired    bool `json:"is_required"`
	AllowMultiple bool `json:"allow_multiple"`

	Metadata    Metadata    `json:"metadata"`
	Permissions Permissions `json:"permissions"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SourceKind discriminates how an instance was produced.
type SourceKind string

const (
	SourceHuman     SourceKind = "human"
	SourceLLM       SourceKind = "llm"
	SourceAutomatic SourceKind = "automatic"
)

// Source records the provenance of an instance. UserID/UserName are set
// for human sources; Detail carries the model or rule identifier for
// llm/automatic sources.
type Source struct {
	Kind     SourceKind `json:"kind"`
	UserID   string     `json:"user_id,omitempty"`
	UserName string     `json:"user_name,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

// InstanceMetadata holds correlation and versioning info for an instance.
type InstanceMetadata struct {
	SessionID string   `json:"session_id,omitempty"`
	BatchID   string   `json:"batch_id,omitempty"`
	Version   int      `json:"version"`
	Tags      []string `json:"tags,omitempty"`
}

// Instance is one recorded scoring event against a definition and a
// target entity. Value is dynamically typed per the owning definition;
// it holds JSON-shaped data (float64, string, bool, or []any).
type Instance struct {
	ID             string `json:"id"`
	DefinitionID   string `json:"definition_id"`
	DefinitionName string `json:"definition_name"`
	WorkspaceID    string `json:"workspace_id"`

	EntityType Scope  `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`

	Source   Source           `json:"source"`
	Metadata InstanceMetadata `json:"metadata"`

	IsVerified bool       `json:"is_verified"`
	VerifiedBy string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	ProjectID    string `json:"project_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeleteOutcome reports which deletion branch a definition delete took.
type DeleteOutcome string

const (
	// DeleteHard means the definition was removed entirely.
	DeleteHard DeleteOutcome = "hard"
	// DeleteSoft means the definition was deactivated in place because
	// instances still reference it.
	DeleteSoft DeleteOutcome = "soft"
)

// DefaultAggregationTypes returns the aggregation types applied when a
// definition is created without an explicit list.
func DefaultAggregationTypes(t Type) []AggregationType {
	switch t {
	case TypeNumerical, TypeLikertScale:
		return []AggregationType{AggAverage, AggMin, AggMax, AggCount}
	case TypeCategorical, TypeBoolean:
		return []AggregationType{AggCount, AggDistribution}
	default:
		return []AggregationType{AggCount}
	}
}

// IsNumericType reports whether values of t support numeric statistics.
func IsNumericType(t Type) bool {
	return t == TypeNumerical || t == TypeLikertScale
}

// Range returns the effective endpoint range of a likert definition.
func (c *LikertConfig) Range() (min, max int) {
	if c == nil || c.Max == 0 {
		return DefaultLikertMin, DefaultLikertMax
	}
	return c.Min, c.Max
}
