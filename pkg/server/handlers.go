package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/export"
	"mercator-hq/verdict/pkg/decisionlog/query"
	"mercator-hq/verdict/pkg/server/middleware"
	"mercator-hq/verdict/pkg/table"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/workspace"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a JSON body into dst and answers 400 or 413 itself when
// it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", nil)
			return false
		}
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

type ruleView struct {
	*workspace.Rule
	Status  table.State   `json:"status"`
	Inputs  []table.Field `json:"inputs,omitempty"`
	Outputs []table.Field `json:"outputs,omitempty"`
	Rows    []rowView     `json:"rows,omitempty"`
}

type rowView struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Match       string        `json:"match"`
	Conditions  []string      `json:"conditions,omitempty"`
	Outcome     table.Outcome `json:"outcome,omitempty"`
}

func viewOf(rule *workspace.Rule, detailed bool) ruleView {
	v := ruleView{Rule: rule, Status: rule.Status()}
	if !detailed || rule.Table == nil {
		return v
	}

	reg := rule.Table.Registry()
	v.Inputs = reg.Inputs()
	v.Outputs = reg.Outputs()
	for _, row := range rule.Table.Rows() {
		rv := rowView{
			ID:          row.ID,
			Description: row.Description,
			Match:       "all",
			Outcome:     row.Outcome,
		}
		switch {
		case row.IsFallback():
			rv.Match = "fallback"
		case row.Combinator == table.CombinatorAny:
			rv.Match = "any"
		}
		for _, p := range row.Predicates {
			rv.Conditions = append(rv.Conditions, p.String())
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	rules := s.workspace.List()

	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		if folder != "" && rule.Folder != folder {
			continue
		}
		out = append(out, viewOf(rule, false))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out, "count": len(out)})
}

// handleGetRule answers JSON by default. format=yaml returns the table
// document and format=grid the rendered grid.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.workspace.Get(chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		respondJSON(w, http.StatusOK, viewOf(rule, true))
	case "yaml":
		doc := tablefile.FromTable(rule.Table, tablefile.Meta{
			Slug:              rule.Slug,
			Folder:            rule.Folder,
			ContinuousTesting: rule.ContinuousTesting,
		}, rule.Tests)
		doc.Name = rule.Name
		data, err := doc.Marshal()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	case "grid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, rule.Table.Render())
	default:
		badRequest(w, "format must be json, yaml or grid")
	}
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req table.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if req == nil {
		badRequest(w, "request body must be a JSON object")
		return
	}

	d, err := s.workspace.Solve(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type bulkRequest struct {
	Requests []table.Request `json:"requests"`
}

type bulkItem struct {
	Decision *table.Decision `json:"decision,omitempty"`
	Error    *bulkError      `json:"error,omitempty"`
}

type bulkError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var body bulkRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Requests) == 0 {
		badRequest(w, "requests must not be empty")
		return
	}

	batch, err := s.workspace.BulkSolve(r.Context(), chi.URLParam(r, "slug"), body.Requests)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]bulkItem, len(batch.Results))
	failed := 0
	for i, res := range batch.Results {
		if res.Err != nil {
			_, code := errorStatus(res.Err)
			items[i].Error = &bulkError{Code: code, Message: res.Err.Error()}
			failed++
			continue
		}
		items[i].Decision = res.Decision
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"batch_id": batch.ID,
		"results":  items,
		"failed":   failed,
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	report, err := s.workspace.Test(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	v, err := s.workspace.Publish(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if _, err := s.workspace.Get(slug); err != nil {
		s.writeError(w, r, err)
		return
	}
	versions, err := s.workspace.Versions(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, v := range versions {
		v.Document = ""
	}
	respondJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// handleDecisions queries the decision log. Filters: slug, row_id,
// batch_id, status, since, until (RFC 3339), limit, offset, sort_by, order.
// format selects json (default), csv or text.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		middleware.WriteError(w, http.StatusNotFound, "decision_logs_disabled", "decision logging is disabled", nil)
		return
	}

	q, err := parseDecisionQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := query.Validate(q); err != nil {
		s.writeError(w, r, err)
		return
	}
	query.ApplyDefaults(q)

	records, err := s.decisions.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		total, err := s.decisions.Count(r.Context(), &decisionlog.Query{
			StartTime: q.StartTime,
			EndTime:   q.EndTime,
			Slug:      q.Slug,
			RowID:     q.RowID,
			BatchID:   q.BatchID,
			Status:    q.Status,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"decisions": records, "total": total})
		return
	}

	exporter, err := export.New(format)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := exporter.Export(r.Context(), records, w); err != nil {
		s.logger.ErrorContext(r.Context(), "decision export failed", "format", format, "error", err)
	}
}

func parseDecisionQuery(r *http.Request) (*decisionlog.Query, error) {
	params := r.URL.Query()
	q := &decisionlog.Query{
		Slug:      params.Get("slug"),
		RowID:     params.Get("row_id"),
		BatchID:   params.Get("batch_id"),
		Status:    params.Get("status"),
		SortBy:    params.Get("sort_by"),
		SortOrder: params.Get("order"),
	}

	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if v := params.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s must be an integer", name)
			}
			*dst = n
		}
	}

	for name, dst := range map[string]**time.Time{"since": &q.StartTime, "until": &q.EndTime} {
		if v := params.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("%s must be an RFC 3339 time", name)
			}
			*dst = &t
		}
	}
	return q, nil
}

func (s *Server) handleListValues(w http.ResponseWriter, r *http.Request) {
	values, err := s.workspace.Values(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	v, err := s.workspace.GetValue(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value any `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Value == nil {
		badRequest(w, "value is required")
		return
	}

	v, err := s.workspace.SetValue(r.Context(), chi.URLParam(r, "name"), body.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteValue(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.DeleteValue(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
