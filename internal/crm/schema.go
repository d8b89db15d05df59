package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

const (
	companyGroup = "companyinformation"
	contactGroup = "contactinformation"
)

// SchemaProperty is a custom property the sync writes to
type SchemaProperty struct {
	Object     models.ObjectType
	Definition models.PropertyDefinition
}

// Schema lists every custom property EnsureSchema guarantees
var Schema = []SchemaProperty{
	{models.ObjectCompanies, numberProperty(models.PropCompanyExternalID, "CS-Cart Company ID", companyGroup,
		"Vendor id in the e-commerce store, used to correlate records")},
	{models.ObjectCompanies, numberProperty(models.PropProductCount, "CS-Cart Active Products", companyGroup,
		"Number of active products")},
	{models.ObjectCompanies, numberProperty(models.PropDraftProductCount, "CS-Cart Draft Products", companyGroup,
		"Number of draft products")},
	{models.ObjectCompanies, numberProperty(models.PropOrderCount, "CS-Cart Orders", companyGroup,
		"Number of processed, complete or open orders")},
	{models.ObjectCompanies, textProperty(models.PropCompanyEmail, "CS-Cart Email", companyGroup,
		"Vendor contact email in the store")},
	{models.ObjectCompanies, models.PropertyDefinition{
		Name:        models.PropCompanyStatus,
		Label:       "CS-Cart Status",
		Type:        "enumeration",
		FieldType:   "select",
		GroupName:   companyGroup,
		Description: "Vendor status in the store",
		Options: []models.PropertyOption{
			{Label: "Active", Value: string(models.StatusActive), DisplayOrder: 0},
			{Label: "Draft", Value: string(models.StatusDraft), DisplayOrder: 1},
			{Label: "Suspended", Value: string(models.StatusSuspended), DisplayOrder: 2},
		},
	}},
	{models.ObjectCompanies, textProperty(models.PropPaymentMethods, "CS-Cart Payment Methods", companyGroup,
		"Active payment processors")},
	{models.ObjectContacts, numberProperty(models.PropContactExternalID, "CS-Cart User ID", contactGroup,
		"User id in the e-commerce store, used to correlate records")},
	{models.ObjectContacts, models.PropertyDefinition{
		Name:        models.PropContactLastLogin,
		Label:       "CS-Cart Last Login",
		Type:        "datetime",
		FieldType:   "date",
		GroupName:   contactGroup,
		Description: "Last login to the store admin panel",
	}},
}

func numberProperty(name, label, group, description string) models.PropertyDefinition {
	return models.PropertyDefinition{
		Name: name, Label: label, Type: "number", FieldType: "number", GroupName: group, Description: description,
	}
}

func textProperty(name, label, group, description string) models.PropertyDefinition {
	return models.PropertyDefinition{
		Name: name, Label: label, Type: "string", FieldType: "text", GroupName: group, Description: description,
	}
}

// EnsureSchema checks API access, then creates whichever Schema properties are missing.
// Existing properties are left untouched, so calling it every run is safe.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.do(ctx, "probe", http.MethodGet, "/crm/v3/objects/companies?limit=1", nil, nil); err != nil {
		return fmt.Errorf("crm access check failed: %w", err)
	}

	created := 0
	for _, p := range Schema {
		ok, err := c.ensureProperty(ctx, p.Object, p.Definition)
		if err != nil {
			return fmt.Errorf("failed to ensure property %s.%s: %w", p.Object, p.Definition.Name, err)
		}
		if ok {
			created++
		}
	}

	c.logger.Info("CRM schema ready", "properties", len(Schema), "created", created)
	return nil
}

func (c *Client) ensureProperty(ctx context.Context, object models.ObjectType, def models.PropertyDefinition) (bool, error) {
	path := fmt.Sprintf("/crm/v3/properties/%s/%s", object, url.PathEscape(def.Name))
	err := c.do(ctx, "get_property", http.MethodGet, path, nil, nil)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	if err := c.do(ctx, "create_property", http.MethodPost, fmt.Sprintf("/crm/v3/properties/%s", object), def, nil); err != nil {
		return false, err
	}
	c.logger.Info("Created CRM property", "object", object, "name", def.Name)
	return true, nil
}
