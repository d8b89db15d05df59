package models

// CompanyStatus mirrors the single-letter status column of the store
type CompanyStatus string

const (
	StatusActive    CompanyStatus = "A"
	StatusDraft     CompanyStatus = "D"
	StatusSuspended CompanyStatus = "S"
)

// Valid reports whether s is one of the known store statuses
func (s CompanyStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDraft, StatusSuspended:
		return true
	}
	return false
}

// SourceCompany is a read-only snapshot of a vendor row plus its aggregates
type SourceCompany struct {
	ID        int64         `json:"company_id" db:"company_id"`
	Name      string        `json:"company" db:"company"`
	Email     *string       `json:"email" db:"email"`
	URL       *string       `json:"url" db:"url"`
	Phone     *string       `json:"phone" db:"phone"`
	City      *string       `json:"city" db:"city"`
	State     *string       `json:"state" db:"state"`
	Country   *string       `json:"country" db:"country"`
	Zipcode   *string       `json:"zipcode" db:"zipcode"`
	Address   *string       `json:"address" db:"address"`
	Status    CompanyStatus `json:"status" db:"status"`
	Timestamp int64         `json:"timestamp" db:"timestamp"`

	// Aggregates are computed per page by the reader; they are not atomic with the base row
	ActiveProductCount int64 `json:"product_count" db:"product_count"`
	DraftProductCount  int64 `json:"draft_product_count" db:"draft_product_count"`
	OrderCount         int64 `json:"order_count" db:"order_count"`
	HasPayPal          bool  `json:"has_paypal" db:"has_paypal"`
	HasStripe          bool  `json:"has_stripe" db:"has_stripe"`
}

// CompanyFilter narrows a company read. A nil or empty IDs slice means every company
type CompanyFilter struct {
	PageSize   int
	IDs        []int64
	Status     CompanyStatus
	SkipCounts bool
}
