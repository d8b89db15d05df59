package service

import (
	"context"
	"testing"

	"github.com/Guizzs26/go-crm-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crmCompany(id, name string) models.Object {
	return models.Object{ID: id, Properties: map[string]string{"name": name}}
}

func newTestFinder(src SourceReader, merger StoreMerger, crm CRMDirectory) *DuplicateFinder {
	f := NewDuplicateFinder(src, merger, crm, discardLogger())
	f.batchPause = 0
	return f
}

func TestGroupByName(t *testing.T) {
	t.Parallel()

	members := []models.DuplicateMember{
		{ID: "cs_1", Name: "Acme Inc", Source: models.SourceStore},
		{ID: "cs_2", Name: "ACME", Source: models.SourceStore},
		{ID: "cs_3", Name: "Beta LLC", Source: models.SourceStore},
	}

	groups := GroupByName(members)
	require.Len(t, groups, 1)
	assert.Equal(t, "acme", groups[0].NormalizedName)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, []string{models.SourceStore}, groups[0].Sources)
}

func TestGroupByNameSortsBySizeDescending(t *testing.T) {
	t.Parallel()

	members := []models.DuplicateMember{
		{ID: "1", Name: "Beta", Source: models.SourceStore},
		{ID: "2", Name: "beta ltd", Source: models.SourceCRM},
		{ID: "3", Name: "Gamma Corp", Source: models.SourceStore},
		{ID: "4", Name: "gamma", Source: models.SourceStore},
		{ID: "5", Name: "GAMMA  company", Source: models.SourceCRM},
		{ID: "6", Name: "Inc", Source: models.SourceCRM},
	}

	groups := GroupByName(members)
	require.Len(t, groups, 2)
	assert.Equal(t, "gamma", groups[0].NormalizedName)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, "beta", groups[1].NormalizedName)
	assert.Equal(t, []string{models.SourceStore, models.SourceCRM}, groups[1].Sources)
}

func TestFindEfficient(t *testing.T) {
	t.Parallel()

	src := &fakeSource{companies: []models.SourceCompany{company(1, "Acme Inc"), company(2, "Delta")}}
	crm := &fakeCRM{uncorrelated: []models.Object{
		crmCompany("900", "ACME"),
		crmCompany("901", ""),
		crmCompany("902", "Epsilon"),
	}}

	groups, err := newTestFinder(src, nil, crm).FindEfficient(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, []string{models.SourceStore, models.SourceCRM}, g.Sources)
	assert.Equal(t, "cs_1", g.Companies[0].ID)
	assert.Equal(t, int64(1), g.Companies[0].CSCartID)
	assert.Equal(t, "hs_900", g.Companies[1].ID)
	assert.Equal(t, "900", g.Companies[1].HubSpotID)
}

func TestFindTargeted(t *testing.T) {
	t.Parallel()

	src := &fakeSource{companies: []models.SourceCompany{
		company(1, "Acme Inc"),
		company(2, "ACME"), // same key as 1, not searched again
		company(3, "Z"),    // too short to search
		company(4, "Beta LLC"),
	}}
	crm := &fakeCRM{byName: map[string][]models.Object{
		"Acme Inc": {crmCompany("900", "Acme"), crmCompany("901", "Acme Holdings")},
		"acme":     {crmCompany("900", "Acme"), crmCompany("902", "ACME inc.")},
		"Beta LLC": {},
		"beta":     {},
	}}

	groups, err := newTestFinder(src, nil, crm).FindTargeted(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "acme", g.NormalizedName)
	assert.Equal(t, 3, g.Count, "store company plus two distinct CRM matches")
	var ids []string
	for _, m := range g.Companies {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "hs_900")
	assert.Contains(t, ids, "hs_902")
	assert.NotContains(t, ids, "hs_901", "token match with a different normalized name is dropped")

	assert.NotContains(t, crm.searches, "Z")
	assert.NotContains(t, crm.searches, "z")
	assert.Len(t, crm.searches, 4)
}

func TestMergeValidation(t *testing.T) {
	t.Parallel()

	store := models.DuplicateMember{ID: "cs_1", Source: models.SourceStore, CSCartID: 1}
	crmMem := models.DuplicateMember{ID: "hs_9", Source: models.SourceCRM, HubSpotID: "9"}

	tests := []struct {
		name string
		req  MergeRequest
		want error
	}{
		{name: "missing primary", req: MergeRequest{Duplicates: []models.DuplicateMember{store}}, want: ErrMissingPrimary},
		{name: "no duplicates", req: MergeRequest{Primary: store}, want: ErrNoDuplicates},
		{name: "mixed sources", req: MergeRequest{Primary: store, Duplicates: []models.DuplicateMember{crmMem}}, want: ErrMixedSources},
		{
			name: "store member without id",
			req:  MergeRequest{Primary: store, Duplicates: []models.DuplicateMember{{ID: "cs_x", Source: models.SourceStore}}},
			want: ErrMissingSourceID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			merger := &fakeMerger{}
			_, err := newTestFinder(&fakeSource{}, merger, &fakeCRM{}).Merge(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, merger.primary)
		})
	}
}

func TestMergeStoreCompanies(t *testing.T) {
	t.Parallel()

	merger := &fakeMerger{}
	res, err := newTestFinder(&fakeSource{}, merger, &fakeCRM{}).Merge(context.Background(), MergeRequest{
		Primary: models.DuplicateMember{ID: "cs_1", Source: models.SourceStore, CSCartID: 1},
		Duplicates: []models.DuplicateMember{
			{ID: "cs_2", Source: models.SourceStore, CSCartID: 2},
			{ID: "cs_3", Source: models.SourceStore, CSCartID: 3},
		},
		DryRun: true,
	})
	require.NoError(t, err)

	assert.Equal(t, MergeTypeStore, res.MergeType)
	require.NotNil(t, res.Store)
	assert.Nil(t, res.CRM)
	assert.Equal(t, int64(1), merger.primary)
	assert.Equal(t, []int64{2, 3}, merger.dups)
	assert.True(t, merger.dryRun)
}

func TestMergeCRMCompanies(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{objects: map[string]models.Object{
		"9":  crmCompany("9", "Acme"),
		"10": crmCompany("10", "ACME Inc"),
	}}
	member := func(id string) models.DuplicateMember {
		return models.DuplicateMember{ID: "hs_" + id, Source: models.SourceCRM, HubSpotID: id}
	}

	res, err := newTestFinder(&fakeSource{}, nil, crm).Merge(context.Background(), MergeRequest{
		Primary:    member("9"),
		Duplicates: []models.DuplicateMember{member("10"), member("9"), member("11")},
	})
	require.NoError(t, err)
	assert.Equal(t, MergeTypeCRM, res.MergeType)
	require.NotNil(t, res.CRM)

	assert.Equal(t, &models.PrimaryRecord{ID: "9", Name: "Acme"}, res.CRM.Primary)
	assert.Equal(t, []models.MergedRecord{{ID: "10", Name: "ACME Inc", Success: true}}, res.CRM.Merged)
	assert.Len(t, res.CRM.Errors, 2, "self merge and missing duplicate")
	assert.Equal(t, []string{"10"}, crm.archived)
}

func TestMergeCRMDryRunArchivesNothing(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{objects: map[string]models.Object{"9": crmCompany("9", "Acme"), "10": crmCompany("10", "Acme")}}
	res, err := newTestFinder(&fakeSource{}, nil, crm).Merge(context.Background(), MergeRequest{
		Primary:    models.DuplicateMember{Source: models.SourceCRM, HubSpotID: "9"},
		Duplicates: []models.DuplicateMember{{Source: models.SourceCRM, HubSpotID: "10"}},
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.True(t, res.CRM.DryRun)
	assert.Len(t, res.CRM.Merged, 1)
	assert.Empty(t, crm.archived)
}

func TestCleanupCRM(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{external: map[string]string{"2": "hs-2", "3": "hs-3"}}
	finder := newTestFinder(&fakeSource{}, nil, crm)

	_, err := finder.CleanupCRM(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrNoCompanyIDs)

	dry, err := finder.CleanupCRM(context.Background(), []int64{1, 2, 3}, true)
	require.NoError(t, err)
	assert.Len(t, dry.Found, 2)
	assert.Empty(t, dry.Deleted)
	assert.Empty(t, crm.archived)

	res, err := finder.CleanupCRM(context.Background(), []int64{1, 2, 3}, false)
	require.NoError(t, err)
	assert.Equal(t, []models.CleanupMatch{{CSCartID: 2, HubSpotID: "hs-2"}, {CSCartID: 3, HubSpotID: "hs-3"}}, res.Deleted)
	assert.Equal(t, []string{"hs-2", "hs-3"}, crm.archived)
	assert.Empty(t, res.Errors)
}
