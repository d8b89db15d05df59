package mapper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

var (
	ErrMissingName       = errors.New("company name is required but missing")
	ErrMissingExternalID = errors.New("external id is required but missing")
)

// lastLoginLayout matches the millisecond ISO-8601 form the CRM expects for datetime properties
const lastLoginLayout = "2006-01-02T15:04:05.000Z"

// ContactMapping is a mapped user: the CRM properties plus a display name for logs and UIs
type ContactMapping struct {
	Properties  models.Properties
	DisplayName string
}

// MapCompany translates a store company into CRM company properties.
// Optional fields that are blank become absent keys.
func MapCompany(c models.SourceCompany) (models.Properties, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("company %d: %w", c.ID, ErrMissingName)
	}
	if c.ID <= 0 {
		return nil, fmt.Errorf("company %q: %w", c.Name, ErrMissingExternalID)
	}

	p := models.Properties{
		"name":                       c.Name,
		models.PropCompanyExternalID: strconv.FormatInt(c.ID, 10),
		models.PropProductCount:      strconv.FormatInt(c.ActiveProductCount, 10),
		models.PropDraftProductCount: strconv.FormatInt(c.DraftProductCount, 10),
		models.PropOrderCount:        strconv.FormatInt(c.OrderCount, 10),
	}
	// statuses outside A/D/S (pending, new) have no CRM option and stay unset
	if c.Status.Valid() {
		p[models.PropCompanyStatus] = string(c.Status)
	}

	if c.URL != nil {
		setOptional(p, "domain", domainFromURL(*c.URL))
	}
	setOptionalPtr(p, "phone", c.Phone)
	setOptionalPtr(p, "city", c.City)
	setOptionalPtr(p, "state", c.State)
	setOptionalPtr(p, "country", c.Country)
	setOptionalPtr(p, "zip", c.Zipcode)
	setOptionalPtr(p, "address", c.Address)
	setOptionalPtr(p, models.PropCompanyEmail, c.Email)
	setOptional(p, models.PropPaymentMethods, paymentMethods(c))

	return p, nil
}

// MapUser translates a store admin user into CRM contact properties. owner may be nil
// when the owning company was not part of the fetched set.
func MapUser(u models.SourceUser, owner *models.SourceCompany) (ContactMapping, error) {
	if u.ID <= 0 {
		return ContactMapping{}, fmt.Errorf("user %q: %w", u.Login, ErrMissingExternalID)
	}

	p := models.Properties{
		models.PropContactExternalID: strconv.FormatInt(u.ID, 10),
		"jobtitle":                   "Admin",
	}
	setOptionalPtr(p, "email", u.Email)
	setOptionalPtr(p, "firstname", u.FirstName)
	setOptionalPtr(p, "lastname", u.LastName)
	setOptionalPtr(p, "phone", u.Phone)
	if owner != nil {
		setOptional(p, "company", owner.Name)
	}
	if u.LastLogin != nil && *u.LastLogin > 0 {
		p[models.PropContactLastLogin] = time.Unix(*u.LastLogin, 0).UTC().Format(lastLoginLayout)
	}

	return ContactMapping{Properties: p, DisplayName: displayName(u)}, nil
}

// NullIfBlank returns the trimmed value and false when it is nil, empty or whitespace only
func NullIfBlank(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

func setOptionalPtr(p models.Properties, key string, value *string) {
	if v, ok := NullIfBlank(value); ok {
		p[key] = v
	}
}

func setOptional(p models.Properties, key, value string) {
	setOptionalPtr(p, key, &value)
}

func displayName(u models.SourceUser) string {
	first, _ := NullIfBlank(u.FirstName)
	last, _ := NullIfBlank(u.LastName)
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	if login := strings.TrimSpace(u.Login); login != "" {
		return login
	}
	if email, ok := NullIfBlank(u.Email); ok {
		return email
	}
	return "Admin User"
}

func paymentMethods(c models.SourceCompany) string {
	var methods []string
	if c.HasPayPal {
		methods = append(methods, "PayPal")
	}
	if c.HasStripe {
		methods = append(methods, "Stripe")
	}
	return strings.Join(methods, ", ")
}

// domainFromURL keeps the host part of a storefront url: "https://www.shop.com/x" -> "www.shop.com"
func domainFromURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
