package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentlens/feedback-engine/internal/domain/feedback"
	"github.com/agentlens/feedback-engine/internal/domain/identity"
	"github.com/agentlens/feedback-engine/internal/middleware"
	"github.com/agentlens/feedback-engine/internal/service"
)

// Handlers bundles the HTTP handlers over the feedback service.
type Handlers struct {
	svc *service.FeedbackService
}

// NewHandlers creates the handler set for the given service.
func NewHandlers(svc *service.FeedbackService) *Handlers {
	return &Handlers{svc: svc}
}

// caller pulls the authenticated caller from the request context. The
// Caller middleware guarantees it is present on all API routes.
func caller(r *http.Request) *identity.Caller {
	return middleware.CallerFromContext(r.Context())
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

func (h *Handlers) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedback.CreateDefinitionRequest](w, r)
	if !ok {
		return
	}

	def, err := h.svc.CreateDefinition(r.Context(), caller(r), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (h *Handlers) GetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.svc.GetDefinition(r.Context(), caller(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handlers) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	summaries, err := h.svc.ListDefinitions(r.Context(), c, c.WorkspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedback.UpdateDefinitionRequest](w, r)
	if !ok {
		return
	}

	def, err := h.svc.UpdateDefinition(r.Context(), caller(r), urlParam(r, "id"), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handlers) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.svc.DeleteDefinition(r.Context(), caller(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// ValidateValue dry-runs a value against a definition without recording
// anything.
func (h *Handlers) ValidateValue(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Value any `json:"value"`
	}](w, r)
	if !ok {
		return
	}

	valid, err := h.svc.ValidateFeedbackValue(r.Context(), urlParam(r, "id"), body.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

func (h *Handlers) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedback.CreateInstanceRequest](w, r)
	if !ok {
		return
	}

	inst, err := h.svc.CreateFeedback(r.Context(), caller(r), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *Handlers) BulkCreateFeedback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedback.BulkCreateRequest](w, r)
	if !ok {
		return
	}
	if len(req.Instances) == 0 {
		writeError(w, http.StatusBadRequest, "instances must not be empty")
		return
	}

	result, err := h.svc.BulkCreateFeedback(r.Context(), caller(r), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Per-instance failures ride inside the result; the batch itself
	// is always accepted.
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) GetFeedback(w http.ResponseWriter, r *http.Request) {
	inst, err := h.svc.GetFeedback(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handlers) ListFeedback(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInstanceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.svc.ListFeedback(r.Context(), caller(r), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) UpdateFeedback(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Value any `json:"value"`
	}](w, r)
	if !ok {
		return
	}

	inst, err := h.svc.UpdateFeedback(r.Context(), caller(r), urlParam(r, "id"), body.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handlers) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFeedback(r.Context(), caller(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) VerifyFeedback(w http.ResponseWriter, r *http.Request) {
	inst, err := h.svc.VerifyFeedback(r.Context(), caller(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handlers) UnverifyFeedback(w http.ResponseWriter, r *http.Request) {
	inst, err := h.svc.UnverifyFeedback(r.Context(), caller(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func (h *Handlers) AggregateFeedback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedback.AggregateRequest](w, r)
	if !ok {
		return
	}
	c := caller(r)
	if req.WorkspaceID == "" {
		req.WorkspaceID = c.WorkspaceID
	}

	resp, err := h.svc.AggregateFeedback(r.Context(), c, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetInsights(w http.ResponseWriter, r *http.Request) {
	scope := feedback.Scope(urlParam(r, "scope"))
	if !feedback.ValidScopes[scope] {
		writeError(w, http.StatusBadRequest, "unsupported entity scope")
		return
	}

	insights, err := h.svc.GetFeedbackInsights(r.Context(), caller(r), scope, urlParam(r, "entityID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// ---------------------------------------------------------------------------
// Query parsing
// ---------------------------------------------------------------------------

// parseInstanceFilter builds an InstanceFilter from list query
// parameters. The workspace is always forced to the caller's by the
// service, so it is not parsed here.
func parseInstanceFilter(r *http.Request) (feedback.InstanceFilter, error) {
	q := r.URL.Query()
	filter := feedback.InstanceFilter{
		DefinitionID: q.Get("definition_id"),
		EntityType:   feedback.Scope(q.Get("entity_type")),
		ProjectID:    q.Get("project_id"),
		ExperimentID: q.Get("experiment_id"),
		SourceKind:   feedback.SourceKind(q.Get("source")),
		UserID:       q.Get("user_id"),
		Search:       q.Get("search"),
	}

	if v := q.Get("entity_ids"); v != "" {
		filter.EntityIDs = strings.Split(v, ",")
	}
	if v := q.Get("values"); v != "" {
		filter.Values = strings.Split(v, ",")
	}

	var err error
	if filter.MinValue, err = parseFloatParam(q.Get("min_value"), "min_value"); err != nil {
		return filter, err
	}
	if filter.MaxValue, err = parseFloatParam(q.Get("max_value"), "max_value"); err != nil {
		return filter, err
	}
	if filter.Verified, err = parseBoolParam(q.Get("verified"), "verified"); err != nil {
		return filter, err
	}
	if filter.Since, err = parseTimeParam(q.Get("since"), "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTimeParam(q.Get("until"), "until"); err != nil {
		return filter, err
	}

	if v := q.Get("page"); v != "" {
		if filter.Page, err = strconv.Atoi(v); err != nil {
			return filter, &paramError{name: "page"}
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			return filter, &paramError{name: "limit"}
		}
	}

	return filter, nil
}

type paramError struct {
	name string
}

func (e *paramError) Error() string {
	return "invalid query parameter " + e.name
}

func parseFloatParam(v, name string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &paramError{name: name}
	}
	return &f, nil
}

func parseBoolParam(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, &paramError{name: name}
	}
	return &b, nil
}

func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &paramError{name: name}
	}
	return &t, nil
}
