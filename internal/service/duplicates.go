package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"
	"github.com/Guizzs26/go-crm-sync/pkg/textnorm"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDuplicateBatchSize = 10
	MaxDuplicateBatchSize     = 50

	MethodEfficient = "efficient"
	MethodTargeted  = "targeted"

	// Merge types reported back to callers
	MergeTypeStore = models.SourceStore
	MergeTypeCRM   = models.SourceCRM

	targetedSearchLimit = 20
	minSearchTermLength = 2
	storeScanPageSize   = 1000
)

var (
	ErrMissingPrimary  = errors.New("primaryCompany is required")
	ErrNoDuplicates    = errors.New("duplicateCompanies array is required")
	ErrMixedSources    = errors.New("mixed CS-Cart and HubSpot company merging is not supported, merge within the same source")
	ErrMissingSourceID = errors.New("every company needs the id of its source system")
	ErrNoCompanyIDs    = errors.New("mergedCompanyIds array is required")
)

// StoreMerger folds duplicate store companies into a primary one
type StoreMerger interface {
	MergeCompanies(ctx context.Context, primaryID int64, duplicateIDs []int64, dryRun bool) (models.StoreMergeResult, error)
}

// CRMDirectory is the read/archive side of the CRM used by the duplicate utilities
type CRMDirectory interface {
	Search(ctx context.Context, object models.ObjectType, property, value string) (*models.Object, error)
	GetByID(ctx context.Context, object models.ObjectType, id string) (*models.Object, error)
	Archive(ctx context.Context, object models.ObjectType, id string) error
	ListUncorrelatedCompanies(ctx context.Context) ([]models.Object, error)
	SearchCompaniesByName(ctx context.Context, term string, limit int) ([]models.Object, error)
}

type MergeRequest struct {
	Primary    models.DuplicateMember   `json:"primaryCompany"`
	Duplicates []models.DuplicateMember `json:"duplicateCompanies"`
	DryRun     bool                     `json:"dryRun"`
}

type MergeResult struct {
	MergeType string                   `json:"mergeType"`
	Store     *models.StoreMergeResult `json:"store,omitempty"`
	CRM       *models.CRMMergeResult   `json:"crm,omitempty"`
}

// DuplicateFinder detects companies that look like the same business across the store
// and the CRM, and merges them within one system. Matching is a name heuristic:
// false positives and misses are expected.
type DuplicateFinder struct {
	store      SourceReader
	merger     StoreMerger
	crm        CRMDirectory
	logger     *slog.Logger
	batchPause time.Duration
}

func NewDuplicateFinder(store SourceReader, merger StoreMerger, crm CRMDirectory, l *slog.Logger) *DuplicateFinder {
	return &DuplicateFinder{
		store:      store,
		merger:     merger,
		crm:        crm,
		logger:     l.With("component", "duplicates"),
		batchPause: 100 * time.Millisecond,
	}
}

// FindEfficient groups every store company with every uncorrelated CRM company by
// normalized name. It costs one paged CRM search.
func (f *DuplicateFinder) FindEfficient(ctx context.Context) ([]models.DuplicateGroup, error) {
	storeCompanies, err := f.allStoreCompanies(ctx)
	if err != nil {
		return nil, err
	}
	crmCompanies, err := f.crm.ListUncorrelatedCompanies(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Scanning for duplicates", "method", MethodEfficient,
		"store_companies", len(storeCompanies), "crm_only_companies", len(crmCompanies))

	members := make([]models.DuplicateMember, 0, len(storeCompanies)+len(crmCompanies))
	for _, c := range storeCompanies {
		members = append(members, storeMember(c))
	}
	for _, o := range crmCompanies {
		if strings.TrimSpace(o.Properties["name"]) == "" {
			continue
		}
		members = append(members, crmMember(o))
	}

	groups := GroupByName(members)
	metrics.DuplicateGroups.WithLabelValues(MethodEfficient).Set(float64(len(groups)))
	f.logger.Info("Duplicate scan finished", "method", MethodEfficient, "groups", len(groups))
	return groups, nil
}

// FindTargeted searches the CRM by name for each store company, batchSize companies at a
// time with a short pause between batches. Higher recall than FindEfficient, at one or two
// searches per distinct name.
func (f *DuplicateFinder) FindTargeted(ctx context.Context, batchSize int) ([]models.DuplicateGroup, error) {
	if batchSize <= 0 {
		batchSize = DefaultDuplicateBatchSize
	}
	batchSize = min(batchSize, MaxDuplicateBatchSize)

	storeCompanies, err := f.allStoreCompanies(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Scanning for duplicates", "method", MethodTargeted,
		"store_companies", len(storeCompanies), "batch_size", batchSize)

	var (
		mu        sync.Mutex
		processed = make(map[string]struct{})
		groups    []models.DuplicateGroup
	)

	for start := 0; start < len(storeCompanies); start += batchSize {
		batch := storeCompanies[start:min(start+batchSize, len(storeCompanies))]
		var g errgroup.Group
		for _, c := range batch {
			g.Go(func() error {
				key := textnorm.CompanyKey(c.Name)
				if key == "" {
					return nil
				}
				mu.Lock()
				_, seen := processed[key]
				processed[key] = struct{}{}
				mu.Unlock()
				if seen {
					return nil
				}

				matches := f.searchMatches(ctx, c.Name, key)
				if len(matches) == 0 {
					return nil
				}

				companies := append([]models.DuplicateMember{storeMember(c)}, matches...)
				mu.Lock()
				groups = append(groups, newGroup(key, companies))
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if start+batchSize < len(storeCompanies) {
			if err := sleepContext(ctx, f.batchPause); err != nil {
				return nil, err
			}
		}
	}

	sortGroups(groups)
	metrics.DuplicateGroups.WithLabelValues(MethodTargeted).Set(float64(len(groups)))
	f.logger.Info("Duplicate scan finished", "method", MethodTargeted, "groups", len(groups))
	return groups, nil
}

// searchMatches looks the company up by its raw and normalized name and keeps results
// whose normalized name is identical. Search failures are logged and yield no matches.
func (f *DuplicateFinder) searchMatches(ctx context.Context, name, key string) []models.DuplicateMember {
	terms := []string{strings.TrimSpace(name)}
	if key != terms[0] {
		terms = append(terms, key)
	}

	seen := make(map[string]struct{})
	var matches []models.DuplicateMember
	for _, term := range terms {
		if utf8.RuneCountInString(term) < minSearchTermLength {
			continue
		}
		results, err := f.crm.SearchCompaniesByName(ctx, term, targetedSearchLimit)
		if err != nil {
			f.logger.Warn("CRM name search failed", "term", term, "error", err)
			continue
		}
		for _, o := range results {
			if _, dup := seen[o.ID]; dup {
				continue
			}
			if textnorm.CompanyKey(o.Properties["name"]) != key {
				continue
			}
			seen[o.ID] = struct{}{}
			matches = append(matches, crmMember(o))
		}
	}
	return matches
}

func (f *DuplicateFinder) allStoreCompanies(ctx context.Context) ([]models.SourceCompany, error) {
	companies, err := f.store.FetchCompanies(ctx, models.CompanyFilter{PageSize: storeScanPageSize})
	if err != nil {
		return nil, fmt.Errorf("fetch store companies: %w", err)
	}
	return companies, nil
}

// Merge folds the duplicates into the primary within their common source system
func (f *DuplicateFinder) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	if req.Primary.ID == "" && req.Primary.CSCartID == 0 && req.Primary.HubSpotID == "" {
		return MergeResult{}, ErrMissingPrimary
	}
	if len(req.Duplicates) == 0 {
		return MergeResult{}, ErrNoDuplicates
	}

	all := append([]models.DuplicateMember{req.Primary}, req.Duplicates...)
	switch {
	case allFrom(all, models.SourceStore):
		dupIDs := make([]int64, 0, len(req.Duplicates))
		for _, d := range req.Duplicates {
			if d.CSCartID <= 0 {
				return MergeResult{}, ErrMissingSourceID
			}
			dupIDs = append(dupIDs, d.CSCartID)
		}
		if req.Primary.CSCartID <= 0 {
			return MergeResult{}, ErrMissingSourceID
		}
		res, err := f.merger.MergeCompanies(ctx, req.Primary.CSCartID, dupIDs, req.DryRun)
		if err != nil {
			return MergeResult{}, err
		}
		return MergeResult{MergeType: MergeTypeStore, Store: &res}, nil

	case allFrom(all, models.SourceCRM):
		for _, m := range all {
			if m.HubSpotID == "" {
				return MergeResult{}, ErrMissingSourceID
			}
		}
		dupIDs := make([]string, len(req.Duplicates))
		for i, d := range req.Duplicates {
			dupIDs[i] = d.HubSpotID
		}
		res := f.mergeCRM(ctx, req.Primary.HubSpotID, dupIDs, req.DryRun)
		return MergeResult{MergeType: MergeTypeCRM, CRM: &res}, nil

	default:
		return MergeResult{}, ErrMixedSources
	}
}

// mergeCRM archives CRM duplicates of primary. Per-record failures are collected, not returned.
func (f *DuplicateFinder) mergeCRM(ctx context.Context, primaryID string, duplicateIDs []string, dryRun bool) models.CRMMergeResult {
	res := models.CRMMergeResult{Merged: []models.MergedRecord{}, Errors: []string{}, DryRun: dryRun}
	l := f.logger.With("primary_id", primaryID, "dry_run", dryRun)

	primary, err := f.crm.GetByID(ctx, models.ObjectCompanies, primaryID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Failed to get primary company: %v", err))
		return res
	}
	res.Primary = &models.PrimaryRecord{ID: primary.ID, Name: nameOrUnknown(primary)}

	for _, id := range duplicateIDs {
		if id == primaryID {
			res.Errors = append(res.Errors, fmt.Sprintf("Cannot merge company %s with itself", id))
			continue
		}
		dup, err := f.crm.GetByID(ctx, models.ObjectCompanies, id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to merge HubSpot company %s: %v", id, err))
			continue
		}
		if !dryRun {
			if err := f.crm.Archive(ctx, models.ObjectCompanies, id); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Failed to merge HubSpot company %s: %v", id, err))
				continue
			}
			l.Info("Archived duplicate CRM company", "duplicate_id", id)
		}
		res.Merged = append(res.Merged, models.MergedRecord{ID: id, Name: nameOrUnknown(dup), Success: true})
	}
	return res
}

// GroupByName buckets members by normalized name and keeps buckets of two or more,
// largest first. Members whose name normalizes to nothing are ignored.
func GroupByName(members []models.DuplicateMember) []models.DuplicateGroup {
	buckets := make(map[string][]models.DuplicateMember)
	var order []string
	for _, m := range members {
		key := textnorm.CompanyKey(m.Name)
		if key == "" {
			continue
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], m)
	}

	var groups []models.DuplicateGroup
	for _, key := range order {
		if len(buckets[key]) > 1 {
			groups = append(groups, newGroup(key, buckets[key]))
		}
	}
	sortGroups(groups)
	return groups
}

func newGroup(key string, companies []models.DuplicateMember) models.DuplicateGroup {
	var sources []string
	for _, c := range companies {
		if !slices.Contains(sources, c.Source) {
			sources = append(sources, c.Source)
		}
	}
	return models.DuplicateGroup{NormalizedName: key, Companies: companies, Count: len(companies), Sources: sources}
}

func sortGroups(groups []models.DuplicateGroup) {
	slices.SortStableFunc(groups, func(a, b models.DuplicateGroup) int {
		return cmp.Compare(b.Count, a.Count)
	})
}

func allFrom(members []models.DuplicateMember, source string) bool {
	for _, m := range members {
		if m.Source != source {
			return false
		}
	}
	return true
}

func storeMember(c models.SourceCompany) models.DuplicateMember {
	return models.DuplicateMember{
		ID:           fmt.Sprintf("cs_%d", c.ID),
		Name:         c.Name,
		Source:       models.SourceStore,
		CSCartID:     c.ID,
		Email:        deref(c.Email),
		Phone:        deref(c.Phone),
		City:         deref(c.City),
		State:        deref(c.State),
		Country:      deref(c.Country),
		ProductCount: c.ActiveProductCount,
		OrderCount:   c.OrderCount,
	}
}

func crmMember(o models.Object) models.DuplicateMember {
	return models.DuplicateMember{
		ID:        "hs_" + o.ID,
		Name:      o.Properties["name"],
		Source:    models.SourceCRM,
		HubSpotID: o.ID,
		Email:     o.Properties["email"],
		Phone:     o.Properties["phone"],
		City:      o.Properties["city"],
		State:     o.Properties["state"],
		Country:   o.Properties["country"],
		Domain:    o.Properties["domain"],
	}
}

func nameOrUnknown(o *models.Object) string {
	if name := o.Properties["name"]; name != "" {
		return name
	}
	return "Unknown"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
