package feedback

import (
	"strings"
	"time"
)

// Name length bounds enforced at definition creation.
const (
	MaxNameLength        = 100
	MaxDisplayNameLength = 200
)

// CreateDefinitionRequest is the input for creating a definition.
type CreateDefinitionRequest struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description,omitempty"`
	Type        Type        `json:"type"`
	Scope       Scope       `json:"scope"`
	Config      Config      `json:"config"`
	Validation  Validation  `json:"validation"`
	Aggregation Aggregation `json:"aggregation"`

	IsRequired    bool `json:"is_required,omitempty"`
	AllowMultiple bool `json:"allow_multiple,omitempty"`

	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`

	// Permissions defaults each empty ACL to the creating caller.
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Validate checks the structural rules of a create request.
func (r *CreateDefinitionRequest) Validate() *DefinitionError {
	if n := len(strings.TrimSpace(r.Name)); n < 1 || n > MaxNameLength {
		return &DefinitionError{Field: "name", Message: "name must be 1-100 characters"}
	}
	if n := len(strings.TrimSpace(r.DisplayName)); n < 1 || n > MaxDisplayNameLength {
		return &DefinitionError{Field: "display_name", Message: "display_name must be 1-200 characters"}
	}
	if !ValidTypes[r.Type] {
		return &DefinitionError{Field: "type", Message: "unsupported feedback type"}
	}
	if !ValidScopes[r.Scope] {
		return &DefinitionError{Field: "scope", Message: "unsupported feedback scope"}
	}
	if r.Type == TypeCategorical {
		cfg := r.Config.Categorical
		if cfg == nil || (len(cfg.Options) == 0 && !cfg.AllowOther) {
			return &DefinitionError{Field: "config.categorical", Message: "categorical definitions need options or allow_other"}
		}
	}
	if r.Type == TypeNumerical && r.Config.Numerical != nil {
		cfg := r.Config.Numerical
		if cfg.MinValue != nil && cfg.MaxValue != nil && *cfg.MinValue > *cfg.MaxValue {
			return &DefinitionError{Field: "config.numerical", Message: "min_value exceeds max_value"}
		}
	}
	return nil
}

// UpdateDefinitionRequest carries the mutable fields of a definition.
// Nil fields are left unchanged; id, workspace, and created_at are
// immutable.
type UpdateDefinitionRequest struct {
	DisplayName *string      `json:"display_name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Type        *Type        `json:"type,omitempty"`
	Config      *Config      `json:"config,omitempty"`
	Validation  *Validation  `json:"validation,omitempty"`
	Aggregation *Aggregation `json:"aggregation,omitempty"`

	IsActive      *bool `json:"is_active,omitempty"`
	IsRequired    *bool `json:"is_required,omitempty"`
	AllowMultiple *bool `json:"allow_multiple,omitempty"`

	Tags     []string `json:"tags,omitempty"`
	Category *string  `json:"category,omitempty"`

	Permissions *Permissions `json:"permissions,omitempty"`
}

// DefinitionSummary decorates a definition with instance activity for
// list responses.
type DefinitionSummary struct {
	Definition
	InstanceCount  int        `json:"instance_count"`
	LastFeedbackAt *time.Time `json:"last_feedback_at,omitempty"`
}

// CreateInstanceRequest is the input for recording one feedback instance.
type CreateInstanceRequest struct {
	DefinitionID string   `json:"definition_id"`
	EntityType   Scope    `json:"entity_type"`
	EntityID     string   `json:"entity_id"`
	Value        any      `json:"value"`
	Confidence   *float64 `json:"confidence,omitempty"`

	SessionID    string   `json:"session_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
	ExperimentID string   `json:"experiment_id,omitempty"`
}

// BulkCreateRequest records several instances under one shared batch id.
type BulkCreateRequest struct {
	Instances []CreateInstanceRequest `json:"instances"`
}

// BulkCreateResult reports per-item outcomes of a bulk create. Errors
// are indexed strings; a failed item never aborts its siblings.
type BulkCreateResult struct {
	BatchID string   `json:"batch_id"`
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

// InstanceFilter narrows a feedback instance listing. Zero values mean
// "no constraint" except Verified, which is a tri-state pointer.
type InstanceFilter struct {
	WorkspaceID  string     `json:"workspace_id"`
	DefinitionID string     `json:"definition_id,omitempty"`
	EntityType   Scope      `json:"entity_type,omitempty"`
	EntityIDs    []string   `json:"entity_ids,omitempty"`
	ProjectID    string     `json:"project_id,omitempty"`
	ExperimentID string     `json:"experiment_id,omitempty"`
	MinValue     *float64   `json:"min_value,omitempty"`
	MaxValue     *float64   `json:"max_value,omitempty"`
	Values       []string   `json:"values,omitempty"`
	SourceKind   SourceKind `json:"source_kind,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	Verified     *bool      `json:"verified,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
	Search       string     `json:"search,omitempty"`

	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Pagination limits applied by the service.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Matches reports whether one instance passes every set constraint of
// the filter. Pagination fields are ignored; they apply to the final
// ordered set, not to individual rows.
func (f *InstanceFilter) Matches(inst *Instance) bool {
	if f.WorkspaceID != "" && inst.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.DefinitionID != "" && inst.DefinitionID != f.DefinitionID {
		return false
	}
	if f.EntityType != "" && inst.EntityType != f.EntityType {
		return false
	}
	if len(f.EntityIDs) > 0 && !containsString(f.EntityIDs, inst.EntityID) {
		return false
	}
	if f.ProjectID != "" && inst.ProjectID != f.ProjectID {
		return false
	}
	if f.ExperimentID != "" && inst.ExperimentID != f.ExperimentID {
		return false
	}
	if f.MinValue != nil || f.MaxValue != nil {
		n, ok := asFloat(inst.Value)
		if !ok {
			return false
		}
		if f.MinValue != nil && n < *f.MinValue {
			return false
		}
		if f.MaxValue != nil && n > *f.MaxValue {
			return false
		}
	}
	if len(f.Values) > 0 && !containsString(f.Values, bucketKey(inst.Value)) {
		return false
	}
	if f.SourceKind != "" && inst.Source.Kind != f.SourceKind {
		return false
	}
	if f.UserID != "" && inst.Source.UserID != f.UserID {
		return false
	}
	if f.Verified != nil && inst.IsVerified != *f.Verified {
		return false
	}
	if f.Since != nil && inst.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && inst.CreatedAt.After(*f.Until) {
		return false
	}
	if f.Search != "" && !matchesSearch(inst, f.Search) {
		return false
	}
	return true
}

// matchesSearch does a case-insensitive substring match over the
// instance's searchable text fields.
func matchesSearch(inst *Instance, q string) bool {
	q = strings.ToLower(q)
	fields := []string{
		inst.DefinitionName,
		inst.EntityID,
		inst.Source.UserName,
		bucketKey(inst.Value),
	}
	fields = append(fields, inst.Metadata.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// AggregateRequest asks for statistics over a filtered instance set.
type AggregateRequest struct {
	WorkspaceID   string            `json:"workspace_id"`
	DefinitionIDs []string          `json:"definition_ids,omitempty"`
	EntityType    Scope             `json:"entity_type,omitempty"`
	EntityIDs     []string          `json:"entity_ids,omitempty"`
	Types         []AggregationType `json:"types,omitempty"`
	TimeWindows   []TimeWindow      `json:"time_windows,omitempty"`

	// IncludeStatistics additionally derives insights from the result set.
	IncludeStatistics bool `json:"include_statistics,omitempty"`
}

// AggregateSummary totals an aggregate response. TotalInstances sums
// each result's data points, so one instance contributing to several
// aggregation types or windows is counted once per contribution. That
// "total data points considered" semantics is deliberate.
type AggregateSummary struct {
	TotalInstances int       `json:"total_instances"`
	Definitions    int       `json:"definitions"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// AggregateResponse is the output of the aggregate operation.
type AggregateResponse struct {
	Results  []AggregationResult `json:"results"`
	Summary  AggregateSummary    `json:"summary"`
	Insights []Insight           `json:"insights,omitempty"`
}

// InstancePage is the output of a feedback listing: one page of
// instances plus aggregations computed over the full filtered set.
type InstancePage struct {
	Instances    []Instance          `json:"instances"`
	Page         int                 `json:"page"`
	Limit        int                 `json:"limit"`
	Total        int                 `json:"total"`
	Aggregations []AggregationResult `json:"aggregations,omitempty"`
}
