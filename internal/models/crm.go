package models

type ObjectType string

const (
	ObjectCompanies ObjectType = "companies"
	ObjectContacts  ObjectType = "contacts"
)

// Custom properties holding the store ids and synced aggregates
const (
	PropCompanyExternalID = "cscart_company_id"
	PropProductCount      = "cscart_product_count"
	PropDraftProductCount = "cscart_draft_product_count"
	PropOrderCount        = "cscart_order_count"
	PropCompanyEmail      = "cscart_email"
	PropCompanyStatus     = "cscart_status"
	PropPaymentMethods    = "cscart_payment_methods"
	PropContactExternalID = "cscart_user_id"
	PropContactLastLogin  = "cscart_last_login"
)

// Contact -> company association, predefined by the CRM
const (
	AssociationCategory    = "HUBSPOT_DEFINED"
	ContactToCompanyTypeID = 280
)

// Properties is the wire shape of CRM object properties. A missing key means absent;
// mappers never store empty strings.
type Properties map[string]string

// Object represents a CRM record (company, contact).
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
	Archived   bool              `json:"archived,omitempty"`
}

type PropertyOption struct {
	Label        string `json:"label"`
	Value        string `json:"value"`
	DisplayOrder int    `json:"displayOrder"`
	Hidden       bool   `json:"hidden"`
}

// PropertyDefinition is a custom property declaration on an object type.
type PropertyDefinition struct {
	Name        string           `json:"name"`
	Label       string           `json:"label"`
	Type        string           `json:"type"`
	FieldType   string           `json:"fieldType"`
	GroupName   string           `json:"groupName"`
	Description string           `json:"description"`
	Options     []PropertyOption `json:"options"`
}

// UpsertResult reports the record an upsert landed on. ID is empty for a dry-run create.
type UpsertResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}
