package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

// CleanupCRM archives the CRM companies still correlated to store companies that were
// merged away. Companies with no CRM record are skipped; per-company failures are
// collected in the result.
func (f *DuplicateFinder) CleanupCRM(ctx context.Context, mergedCompanyIDs []int64, dryRun bool) (models.CleanupResult, error) {
	if len(mergedCompanyIDs) == 0 {
		return models.CleanupResult{}, ErrNoCompanyIDs
	}

	res := models.CleanupResult{
		Found:   []models.CleanupMatch{},
		Deleted: []models.CleanupMatch{},
		Errors:  []string{},
		DryRun:  dryRun,
	}
	l := f.logger.With("dry_run", dryRun)

	for _, id := range mergedCompanyIDs {
		existing, err := f.crm.Search(ctx, models.ObjectCompanies, models.PropCompanyExternalID, strconv.FormatInt(id, 10))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to cleanup company %d: %v", id, err))
			continue
		}
		if existing == nil {
			l.Debug("No CRM company for merged store company", "company_id", id)
			continue
		}

		match := models.CleanupMatch{CSCartID: id, HubSpotID: existing.ID}
		res.Found = append(res.Found, match)
		if dryRun {
			continue
		}

		if err := f.crm.Archive(ctx, models.ObjectCompanies, existing.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to cleanup company %d: %v", id, err))
			continue
		}
		res.Deleted = append(res.Deleted, match)
	}

	l.Info("CRM cleanup complete", "found", len(res.Found), "deleted", len(res.Deleted), "errors", len(res.Errors))
	return res, nil
}
