package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/mapper"
	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SourceReader defines the contract for reading the e-commerce store
type SourceReader interface {
	FetchCompanies(ctx context.Context, f models.CompanyFilter) ([]models.SourceCompany, error)
	FetchUsersForCompanies(ctx context.Context, companyIDs []int64) ([]models.SourceUser, error)
}

// TargetClient defines the contract for writing to the CRM
type TargetClient interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, object models.ObjectType, props models.Properties, externalIDProp string, dryRun bool) (models.UpsertResult, error)
	Associate(ctx context.Context, contactID, companyID string, dryRun bool) error
}

type SyncConfig struct {
	Concurrency int
	PageSize    int
}

type RunOptions struct {
	DryRun bool
	// CompanyIDs restricts the run to these companies; empty means every company
	CompanyIDs []int64
}

// Report is what a run leaves behind. It is returned even when the run fails, carrying
// the events emitted up to the failure.
type Report struct {
	RunID  string         `json:"runId"`
	Result models.Result  `json:"result"`
	Events []models.Event `json:"events"`
	// Correlation maps store company ids to CRM ids. Dry-run creates have no id and are absent.
	Correlation map[int64]string `json:"correlation"`
}

// Synchronizer pushes store companies and their admin users into the CRM
type Synchronizer struct {
	source      SourceReader
	target      TargetClient
	sinks       []EventSink
	concurrency int
	pageSize    int
	logger      *slog.Logger
}

func NewSynchronizer(src SourceReader, tgt TargetClient, cfg SyncConfig, l *slog.Logger, sinks ...EventSink) *Synchronizer {
	return &Synchronizer{
		source:      src,
		target:      tgt,
		sinks:       sinks,
		concurrency: max(cfg.Concurrency, 1),
		pageSize:    cfg.PageSize,
		logger:      l,
	}
}

// Run executes one sync: bootstrap, fetch, companies, contacts. Only bootstrap and fetch
// failures abort the run; a failing record is reported as an error event and skipped.
//
// Run holds no reservation. Two overlapping runs can create duplicate CRM records,
// use Runner to keep them apart.
func (s *Synchronizer) Run(ctx context.Context, opts RunOptions) (report Report, err error) {
	runID := uuid.NewString()
	l := s.logger.With("run_id", runID, "dry_run", opts.DryRun)
	events := newEventLog(runID, l, append([]EventSink{NewLogSink(l)}, s.sinks...)...)

	report = Report{RunID: runID, Correlation: map[int64]string{}}
	defer func() { report.Events = events.snapshot() }()

	start := time.Now()
	l.Info("Sync run started", "company_filter", len(opts.CompanyIDs))

	// Bootstrap
	phaseStart := time.Now()
	if err := s.target.EnsureSchema(ctx); err != nil {
		events.emit(models.Event{Level: models.LevelError, Phase: models.PhaseBootstrap,
			Message: fmt.Sprintf("Schema bootstrap failed: %v", err)})
		return report, fmt.Errorf("schema bootstrap: %w", err)
	}
	observePhase(models.PhaseBootstrap, phaseStart)

	// Fetch
	phaseStart = time.Now()
	companies, err := s.source.FetchCompanies(ctx, models.CompanyFilter{PageSize: s.pageSize, IDs: opts.CompanyIDs})
	if err != nil {
		events.emit(models.Event{Level: models.LevelError, Phase: models.PhaseFetch,
			Message: fmt.Sprintf("Failed to fetch companies: %v", err)})
		return report, fmt.Errorf("fetch companies: %w", err)
	}
	events.info(models.PhaseFetch, fmt.Sprintf("Fetched %d companies", len(companies)))

	companyIDs := make([]int64, len(companies))
	for i, c := range companies {
		companyIDs[i] = c.ID
	}
	users, err := s.source.FetchUsersForCompanies(ctx, companyIDs)
	if err != nil {
		events.emit(models.Event{Level: models.LevelError, Phase: models.PhaseFetch,
			Message: fmt.Sprintf("Failed to fetch admin users: %v", err)})
		return report, fmt.Errorf("fetch users: %w", err)
	}
	events.info(models.PhaseFetch, fmt.Sprintf("Fetched %d admin users", len(users)))
	observePhase(models.PhaseFetch, phaseStart)

	report.Result.CompaniesProcessed = len(companies)
	report.Result.UsersProcessed = len(users)

	run := &syncRun{
		target:      s.target,
		events:      events,
		dryRun:      opts.DryRun,
		correlation: report.Correlation,
	}

	// Companies. Wait is the barrier: contacts need the complete correlation map.
	phaseStart = time.Now()
	var companyGroup errgroup.Group
	companyGroup.SetLimit(s.concurrency)
	for _, c := range companies {
		companyGroup.Go(func() error {
			run.guard(models.PhaseCompanies, models.ObjectCompanies, c.ID, func() { run.syncCompany(ctx, c) })
			return nil
		})
	}
	_ = companyGroup.Wait()
	observePhase(models.PhaseCompanies, phaseStart)

	// Contacts
	phaseStart = time.Now()
	owners := make(map[int64]*models.SourceCompany, len(companies))
	for i := range companies {
		owners[companies[i].ID] = &companies[i]
	}
	var contactGroup errgroup.Group
	contactGroup.SetLimit(s.concurrency)
	for _, u := range users {
		contactGroup.Go(func() error {
			run.guard(models.PhaseContacts, models.ObjectContacts, u.ID, func() { run.syncContact(ctx, u, owners[u.CompanyID]) })
			return nil
		})
	}
	_ = contactGroup.Wait()
	observePhase(models.PhaseContacts, phaseStart)

	run.mu.Lock()
	report.Result.Companies = run.companies
	report.Result.Users = run.users
	run.mu.Unlock()

	l.Info("Sync run finished",
		"companies", report.Result.CompaniesProcessed,
		"users", report.Result.UsersProcessed,
		"company_failures", report.Result.Companies.Failed,
		"user_failures", report.Result.Users.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// syncRun is the shared state of the two fan-out phases
type syncRun struct {
	target TargetClient
	events *eventLog
	dryRun bool

	mu          sync.Mutex
	correlation map[int64]string
	companies   models.PhaseStats
	users       models.PhaseStats
}

// guard turns a panic inside one task into an error event for that record
func (r *syncRun) guard(phase models.Phase, object models.ObjectType, externalID int64, task func()) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(phase, object, externalID, fmt.Errorf("panic: %v", p))
		}
	}()
	task()
}

func (r *syncRun) syncCompany(ctx context.Context, c models.SourceCompany) {
	props, err := mapper.MapCompany(c)
	if err != nil {
		r.fail(models.PhaseCompanies, models.ObjectCompanies, c.ID, err)
		return
	}

	res, err := r.target.Upsert(ctx, models.ObjectCompanies, props, models.PropCompanyExternalID, r.dryRun)
	if err != nil {
		r.fail(models.PhaseCompanies, models.ObjectCompanies, c.ID, err)
		return
	}

	r.mu.Lock()
	if res.ID != "" {
		r.correlation[c.ID] = res.ID
	}
	countOutcome(&r.companies, res)
	r.mu.Unlock()

	action := outcomeAction(res, r.dryRun)
	metrics.RecordsProcessed.WithLabelValues(string(models.ObjectCompanies), action).Inc()
	r.events.emit(models.Event{
		Level:      models.LevelInfo,
		Phase:      models.PhaseCompanies,
		Object:     models.ObjectCompanies,
		ExternalID: c.ID,
		TargetID:   res.ID,
		Action:     action,
		Message:    fmt.Sprintf("%s company %d -> %s", verb(res), c.ID, targetLabel(res.ID)),
	})
}

// syncContact upserts one user. The association is written only when the owning company
// has a CRM id from the company phase; otherwise it is skipped without an event.
// A failed association marks the record failed even though the contact was written.
func (r *syncRun) syncContact(ctx context.Context, u models.SourceUser, owner *models.SourceCompany) {
	m, err := mapper.MapUser(u, owner)
	if err != nil {
		r.fail(models.PhaseContacts, models.ObjectContacts, u.ID, err)
		return
	}

	res, err := r.target.Upsert(ctx, models.ObjectContacts, m.Properties, models.PropContactExternalID, r.dryRun)
	if err != nil {
		r.fail(models.PhaseContacts, models.ObjectContacts, u.ID, err)
		return
	}

	action := outcomeAction(res, r.dryRun)
	r.events.emit(models.Event{
		Level:      models.LevelInfo,
		Phase:      models.PhaseContacts,
		Object:     models.ObjectContacts,
		ExternalID: u.ID,
		TargetID:   res.ID,
		Action:     action,
		Message:    fmt.Sprintf("%s contact %s (user %d) -> %s", verb(res), m.DisplayName, u.ID, targetLabel(res.ID)),
	})

	r.mu.Lock()
	companyTargetID := r.correlation[u.CompanyID]
	r.mu.Unlock()

	associated := false
	if companyTargetID != "" && res.ID != "" && !r.dryRun {
		if err := r.target.Associate(ctx, res.ID, companyTargetID, r.dryRun); err != nil {
			r.fail(models.PhaseContacts, models.ObjectContacts, u.ID, err)
			return
		}
		associated = true
		metrics.Associations.Inc()
		r.events.emit(models.Event{
			Level:      models.LevelInfo,
			Phase:      models.PhaseContacts,
			Object:     models.ObjectContacts,
			ExternalID: u.ID,
			TargetID:   res.ID,
			Action:     "associated",
			Message:    fmt.Sprintf("Associated contact %s -> company %s", res.ID, companyTargetID),
		})
	}

	r.mu.Lock()
	countOutcome(&r.users, res)
	if associated {
		r.users.Associated++
	}
	r.mu.Unlock()
	metrics.RecordsProcessed.WithLabelValues(string(models.ObjectContacts), action).Inc()
}

func (r *syncRun) fail(phase models.Phase, object models.ObjectType, externalID int64, err error) {
	r.mu.Lock()
	if object == models.ObjectCompanies {
		r.companies.Failed++
	} else {
		r.users.Failed++
	}
	r.mu.Unlock()

	metrics.RecordsProcessed.WithLabelValues(string(object), "failed").Inc()

	noun := "company"
	if object == models.ObjectContacts {
		noun = "contact user"
	}
	r.events.emit(models.Event{
		Level:      models.LevelError,
		Phase:      phase,
		Object:     object,
		ExternalID: externalID,
		Action:     "failed",
		Message:    fmt.Sprintf("Failed to sync %s %d: %v", noun, externalID, err),
	})
}

func countOutcome(stats *models.PhaseStats, res models.UpsertResult) {
	if res.Created {
		stats.Created++
	} else {
		stats.Updated++
	}
}

func outcomeAction(res models.UpsertResult, dryRun bool) string {
	switch {
	case dryRun && res.Created:
		return "would_create"
	case dryRun:
		return "would_update"
	case res.Created:
		return "created"
	default:
		return "updated"
	}
}

func verb(res models.UpsertResult) string {
	if res.Created {
		return "Created"
	}
	return "Updated"
}

func targetLabel(id string) string {
	if id == "" {
		return "(dry-run)"
	}
	return id
}

func observePhase(p models.Phase, start time.Time) {
	metrics.PhaseDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
}
