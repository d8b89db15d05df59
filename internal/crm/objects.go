package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

const searchPageLimit = 100

// Properties returned by reads, per object type
var readProperties = map[models.ObjectType][]string{
	models.ObjectCompanies: {
		"name", "domain", "phone", "email", "city", "state", "country",
		models.PropCompanyExternalID, models.PropCompanyEmail,
	},
	models.ObjectContacts: {
		"email", "firstname", "lastname", "company", models.PropContactExternalID,
	},
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

type searchResponse struct {
	Total   int             `json:"total"`
	Results []models.Object `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (r searchResponse) nextAfter() string {
	if r.Paging == nil || r.Paging.Next == nil {
		return ""
	}
	return r.Paging.Next.After
}

type propertiesBody struct {
	Properties models.Properties `json:"properties"`
}

type associationSpec struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

// Search returns the first record whose property equals value, or nil when none matches
func (c *Client) Search(ctx context.Context, object models.ObjectType, property, value string) (*models.Object, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{PropertyName: property, Operator: "EQ", Value: value}}}},
		Properties:   readProperties[object],
		Limit:        1,
	}

	var resp searchResponse
	if err := c.do(ctx, "search", http.MethodPost, fmt.Sprintf("/crm/v3/objects/%s/search", object), req, &resp); err != nil {
		return nil, fmt.Errorf("search %s by %s: %w", object, property, err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// Upsert creates or updates the record correlated by props[externalIDProp].
//
// Search and write are two calls, so two writers racing on the same external id can both
// create. Callers must not run overlapping upserts for one id.
func (c *Client) Upsert(ctx context.Context, object models.ObjectType, props models.Properties, externalIDProp string, dryRun bool) (models.UpsertResult, error) {
	externalID := props[externalIDProp]
	if externalID == "" {
		return models.UpsertResult{}, fmt.Errorf("upsert %s: property %s is required", object, externalIDProp)
	}

	existing, err := c.Search(ctx, object, externalIDProp, externalID)
	if err != nil {
		return models.UpsertResult{}, err
	}

	if existing != nil {
		if !dryRun {
			path := fmt.Sprintf("/crm/v3/objects/%s/%s", object, url.PathEscape(existing.ID))
			if err := c.do(ctx, "update", http.MethodPatch, path, propertiesBody{Properties: props}, nil); err != nil {
				return models.UpsertResult{}, fmt.Errorf("update %s %s: %w", object, existing.ID, err)
			}
		}
		return models.UpsertResult{ID: existing.ID, Created: false}, nil
	}

	if dryRun {
		return models.UpsertResult{Created: true}, nil
	}

	var created models.Object
	if err := c.do(ctx, "create", http.MethodPost, fmt.Sprintf("/crm/v3/objects/%s", object), propertiesBody{Properties: props}, &created); err != nil {
		return models.UpsertResult{}, fmt.Errorf("create %s: %w", object, err)
	}
	if created.ID == "" {
		return models.UpsertResult{}, fmt.Errorf("create %s: response carried no id", object)
	}
	return models.UpsertResult{ID: created.ID, Created: true}, nil
}

// Associate links a contact to a company. It is a no-op when either id is empty or in dry-run.
func (c *Client) Associate(ctx context.Context, contactID, companyID string, dryRun bool) error {
	if contactID == "" || companyID == "" || dryRun {
		return nil
	}
	path := fmt.Sprintf("/crm/v4/objects/contacts/%s/associations/companies/%s",
		url.PathEscape(contactID), url.PathEscape(companyID))
	body := []associationSpec{{
		AssociationCategory: models.AssociationCategory,
		AssociationTypeID:   models.ContactToCompanyTypeID,
	}}
	if err := c.do(ctx, "associate", http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("associate contact %s with company %s: %w", contactID, companyID, err)
	}
	return nil
}

// Archive moves a record to the CRM recycle bin
func (c *Client) Archive(ctx context.Context, object models.ObjectType, id string) error {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", object, url.PathEscape(id))
	if err := c.do(ctx, "archive", http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("archive %s %s: %w", object, id, err)
	}
	return nil
}

// GetByID reads one record. A missing record yields an error matching ErrNotFound.
func (c *Client) GetByID(ctx context.Context, object models.ObjectType, id string) (*models.Object, error) {
	q := url.Values{}
	q.Set("properties", strings.Join(readProperties[object], ","))
	path := fmt.Sprintf("/crm/v3/objects/%s/%s?%s", object, url.PathEscape(id), q.Encode())

	var obj models.Object
	if err := c.do(ctx, "get", http.MethodGet, path, nil, &obj); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", object, id, err)
	}
	return &obj, nil
}

// ListUncorrelatedCompanies pages through every named company that has no store id
func (c *Client) ListUncorrelatedCompanies(ctx context.Context) ([]models.Object, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{
			{PropertyName: models.PropCompanyExternalID, Operator: "NOT_HAS_PROPERTY"},
			{PropertyName: "name", Operator: "HAS_PROPERTY"},
		}}},
		Properties: readProperties[models.ObjectCompanies],
		Limit:      searchPageLimit,
	}

	var all []models.Object
	for {
		var resp searchResponse
		if err := c.do(ctx, "search", http.MethodPost, "/crm/v3/objects/companies/search", req, &resp); err != nil {
			return nil, fmt.Errorf("list uncorrelated companies: %w", err)
		}
		all = append(all, resp.Results...)

		next := resp.nextAfter()
		if next == "" || len(resp.Results) == 0 {
			break
		}
		req.After = next
	}

	c.logger.Debug("Listed uncorrelated CRM companies", "count", len(all))
	return all, nil
}

// SearchCompaniesByName finds uncorrelated companies whose name contains term as a token
func (c *Client) SearchCompaniesByName(ctx context.Context, term string, limit int) ([]models.Object, error) {
	if limit <= 0 || limit > searchPageLimit {
		limit = searchPageLimit
	}
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{
			{PropertyName: "name", Operator: "CONTAINS_TOKEN", Value: term},
			{PropertyName: models.PropCompanyExternalID, Operator: "NOT_HAS_PROPERTY"},
		}}},
		Properties: readProperties[models.ObjectCompanies],
		Limit:      limit,
	}

	var resp searchResponse
	if err := c.do(ctx, "search", http.MethodPost, "/crm/v3/objects/companies/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search companies by name %q: %w", term, err)
	}
	return resp.Results, nil
}

// IsNotFound reports whether err means the remote record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
