package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Guizzs26/go-crm-sync/internal/config"
	"github.com/Guizzs26/go-crm-sync/internal/db"
	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/internal/reservation"
	"github.com/Guizzs26/go-crm-sync/internal/service"
)

type handlers struct {
	companies  CompanyLister
	runner     SyncRunner
	duplicates DuplicateService
	defaults   Defaults
	logger     *slog.Logger
}

type companiesResponse struct {
	OK    bool                   `json:"ok"`
	Count int                    `json:"count"`
	Data  []models.SourceCompany `json:"data"`
}

// GET /api/companies?ids=1,2&status=A
func (h *handlers) listCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CompanyFilter{
		PageSize: h.defaults.PageSize,
		IDs:      config.ParseIDList(q.Get("ids")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := models.CompanyStatus(strings.ToUpper(raw))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be one of A, D, S")
			return
		}
		filter.Status = status
	}

	companies, err := h.companies.FetchCompanies(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list companies", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if companies == nil {
		companies = []models.SourceCompany{}
	}
	writeJSON(w, http.StatusOK, companiesResponse{OK: true, Count: len(companies), Data: companies})
}

type syncRequest struct {
	DryRun     *bool   `json:"dryRun"`
	CompanyIDs []int64 `json:"companyIds"`
}

type syncResponse struct {
	OK     bool           `json:"ok"`
	RunID  string         `json:"runId"`
	Result models.Result  `json:"result"`
	Events []models.Event `json:"events"`
}

type conflictResponse struct {
	OK        bool                  `json:"ok"`
	Error     string                `json:"error"`
	Conflicts *reservation.Conflict `json:"conflicts"`
}

// POST /api/sync
func (h *handlers) runSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := service.RunOptions{
		DryRun:     boolOr(req.DryRun, h.defaults.DryRun),
		CompanyIDs: req.CompanyIDs,
	}
	if len(opts.CompanyIDs) == 0 {
		opts.CompanyIDs = h.defaults.CompanyIDs
	}

	// a client disconnect must not cut a run short
	ctx := context.WithoutCancel(r.Context())
	report, err := h.runner.Run(ctx, opts)

	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: conflict.Reason, Conflicts: conflict.Conflicts})
	case err != nil:
		h.logger.Error("Sync run failed", "run_id", report.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Events: eventsOrEmpty(report.Events)})
	default:
		writeJSON(w, http.StatusOK, syncResponse{
			OK:     true,
			RunID:  report.RunID,
			Result: report.Result,
			Events: eventsOrEmpty(report.Events),
		})
	}
}

type statusResponse struct {
	OK        bool    `json:"ok"`
	Global    bool    `json:"global"`
	Companies []int64 `json:"companies"`
}

// GET /api/status
func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	st := h.runner.State()
	companies := st.Companies
	if companies == nil {
		companies = []int64{}
	}
	writeJSON(w, http.StatusOK, statusResponse{OK: true, Global: st.Global, Companies: companies})
}

type duplicatesResponse struct {
	OK              bool                    `json:"ok"`
	Method          string                  `json:"method"`
	Count           int                     `json:"count"`
	TotalDuplicates int                     `json:"totalDuplicates"`
	Data            []models.DuplicateGroup `json:"data"`
}

// GET /api/duplicates?method=efficient|targeted&batchSize=10
func (h *handlers) findDuplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method := strings.ToLower(strings.TrimSpace(q.Get("method")))
	if method == "" {
		method = service.MethodEfficient
	}

	var (
		groups []models.DuplicateGroup
		err    error
	)
	switch method {
	case service.MethodEfficient:
		groups, err = h.duplicates.FindEfficient(r.Context())
	case service.MethodTargeted:
		groups, err = h.duplicates.FindTargeted(r.Context(), parseBatchSize(q.Get("batchSize")))
	default:
		writeError(w, http.StatusBadRequest, "method must be efficient or targeted")
		return
	}
	if err != nil {
		h.logger.Error("Duplicate scan failed", "method", method, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, g := range groups {
		total += g.Count
	}
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, duplicatesResponse{
		OK:              true,
		Method:          method,
		Count:           len(groups),
		TotalDuplicates: total,
		Data:            groups,
	})
}

type mergeRequest struct {
	Primary    *models.DuplicateMember  `json:"primaryCompany"`
	Duplicates []models.DuplicateMember `json:"duplicateCompanies"`
	DryRun     *bool                    `json:"dryRun"`
}

type mergeResponse struct {
	OK        bool                `json:"ok"`
	MergeType string              `json:"mergeType"`
	Result    service.MergeResult `json:"result"`
}

// POST /api/duplicates merges within one source. dryRun defaults to true.
func (h *handlers) mergeDuplicates(w http.ResponseWriter, r *http.Request) {
	var body mergeRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := service.MergeRequest{Duplicates: body.Duplicates, DryRun: boolOr(body.DryRun, true)}
	if body.Primary != nil {
		req.Primary = *body.Primary
	}

	res, err := h.duplicates.Merge(r.Context(), req)
	if err != nil {
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, db.ErrCompanyNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Merge failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mergeResponse{OK: true, MergeType: res.MergeType, Result: res})
}

type cleanupRequest struct {
	MergedCompanyIDs []int64 `json:"mergedCompanyIds"`
	DryRun           *bool   `json:"dryRun"`
}

type cleanupResponse struct {
	OK     bool                 `json:"ok"`
	Result models.CleanupResult `json:"result"`
}

// POST /api/hubspot-cleanup archives CRM companies whose store rows were merged away.
// dryRun defaults to true.
func (h *handlers) cleanupCRM(w http.ResponseWriter, r *http.Request) {
	var body cleanupRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.duplicates.CleanupCRM(r.Context(), body.MergedCompanyIDs, boolOr(body.DryRun, true))
	if err != nil {
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("CRM cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{OK: true, Result: res})
}

func isValidation(err error) bool {
	for _, target := range []error{
		service.ErrMissingPrimary,
		service.ErrNoDuplicates,
		service.ErrMixedSources,
		service.ErrMissingSourceID,
		service.ErrNoCompanyIDs,
		db.ErrPrimaryInDuplicates,
		db.ErrNoDuplicates,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseBatchSize falls back to the default on garbage and caps at the maximum
func parseBatchSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return service.DefaultDuplicateBatchSize
	}
	return min(n, service.MaxDuplicateBatchSize)
}

func eventsOrEmpty(events []models.Event) []models.Event {
	if events == nil {
		return []models.Event{}
	}
	return events
}
