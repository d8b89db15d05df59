package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	companies  []models.SourceCompany
	users      []models.SourceUser
	companyErr error
	userErr    error

	mu         sync.Mutex
	userCalls  [][]int64
	companyReq []models.CompanyFilter
}

func (f *fakeSource) FetchCompanies(_ context.Context, filter models.CompanyFilter) ([]models.SourceCompany, error) {
	f.mu.Lock()
	f.companyReq = append(f.companyReq, filter)
	f.mu.Unlock()
	if f.companyErr != nil {
		return nil, f.companyErr
	}
	if len(filter.IDs) == 0 {
		return f.companies, nil
	}
	var out []models.SourceCompany
	for _, c := range f.companies {
		if slices.Contains(filter.IDs, c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchUsersForCompanies(_ context.Context, ids []int64) ([]models.SourceUser, error) {
	f.mu.Lock()
	f.userCalls = append(f.userCalls, ids)
	f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	var out []models.SourceUser
	for _, u := range f.users {
		if slices.Contains(ids, u.CompanyID) {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeTarget keeps records per object type keyed by external id
type fakeTarget struct {
	schemaErr error
	// failOn makes Upsert fail for these "<object>/<external id>" keys
	failOn map[string]error
	// panicOn makes Upsert panic for these keys
	panicOn map[string]bool
	assocErr error

	mu           sync.Mutex
	nextID       int
	records      map[string]string
	upserts      int
	associations map[string]string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		failOn:       map[string]error{},
		panicOn:      map[string]bool{},
		records:      map[string]string{},
		associations: map[string]string{},
	}
}

func (f *fakeTarget) EnsureSchema(context.Context) error {
	return f.schemaErr
}

func (f *fakeTarget) Upsert(_ context.Context, object models.ObjectType, props models.Properties, externalIDProp string, dryRun bool) (models.UpsertResult, error) {
	key := fmt.Sprintf("%s/%s", object, props[externalIDProp])
	if f.panicOn[key] {
		panic("boom " + key)
	}
	if err := f.failOn[key]; err != nil {
		return models.UpsertResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if id, ok := f.records[key]; ok {
		return models.UpsertResult{ID: id}, nil
	}
	if dryRun {
		return models.UpsertResult{Created: true}, nil
	}
	f.nextID++
	id := fmt.Sprintf("hs-%d", f.nextID)
	f.records[key] = id
	return models.UpsertResult{ID: id, Created: true}, nil
}

func (f *fakeTarget) Associate(_ context.Context, contactID, companyID string, dryRun bool) error {
	if dryRun || contactID == "" || companyID == "" {
		return nil
	}
	if f.assocErr != nil {
		return f.assocErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.associations[contactID] = companyID
	return nil
}

func (f *fakeTarget) idFor(object models.ObjectType, externalID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[fmt.Sprintf("%s/%d", object, externalID)]
}

type fakeCRM struct {
	uncorrelated []models.Object
	listErr      error
	// byName answers SearchCompaniesByName per term
	byName   map[string][]models.Object
	objects  map[string]models.Object
	external map[string]string

	mu       sync.Mutex
	searches []string
	archived []string
}

func (f *fakeCRM) Search(_ context.Context, _ models.ObjectType, _ string, value string) (*models.Object, error) {
	id, ok := f.external[value]
	if !ok {
		return nil, nil
	}
	obj := models.Object{ID: id}
	return &obj, nil
}

func (f *fakeCRM) GetByID(_ context.Context, _ models.ObjectType, id string) (*models.Object, error) {
	obj, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("get %s: not found", id)
	}
	return &obj, nil
}

func (f *fakeCRM) Archive(_ context.Context, _ models.ObjectType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeCRM) ListUncorrelatedCompanies(context.Context) ([]models.Object, error) {
	return f.uncorrelated, f.listErr
}

func (f *fakeCRM) SearchCompaniesByName(_ context.Context, term string, _ int) ([]models.Object, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	f.mu.Unlock()
	return f.byName[term], nil
}

type fakeMerger struct {
	primary int64
	dups    []int64
	dryRun  bool
}

func (f *fakeMerger) MergeCompanies(_ context.Context, primaryID int64, duplicateIDs []int64, dryRun bool) (models.StoreMergeResult, error) {
	f.primary, f.dups, f.dryRun = primaryID, duplicateIDs, dryRun
	return models.StoreMergeResult{PrimaryID: primaryID, DuplicateIDs: duplicateIDs, Deleted: int64(len(duplicateIDs)), DryRun: dryRun}, nil
}

func company(id int64, name string) models.SourceCompany {
	return models.SourceCompany{ID: id, Name: name, Status: models.StatusActive}
}

func adminUser(id, companyID int64, login string) models.SourceUser {
	return models.SourceUser{ID: id, Login: login, CompanyID: companyID}
}
