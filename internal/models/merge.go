package models

// Member sources
const (
	SourceStore = "cs-cart"
	SourceCRM   = "hubspot"
)

// DuplicateMember is one record of a duplicate group, from either system.
// ID is "cs_<store id>" or "hs_<crm id>".
type DuplicateMember struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Source       string `json:"source"`
	CSCartID     int64  `json:"csCartId,omitempty"`
	HubSpotID    string `json:"hubSpotId,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	Domain       string `json:"domain,omitempty"`
	ProductCount int64  `json:"productCount"`
	OrderCount   int64  `json:"orderCount"`
}

// DuplicateGroup collects members sharing a normalized name. Built per scan, never stored.
type DuplicateGroup struct {
	NormalizedName string            `json:"normalizedName"`
	Companies      []DuplicateMember `json:"companies"`
	Count          int               `json:"count"`
	Sources        []string          `json:"sources"`
}

// MergeCounts is the number of child rows repointed (or that would be) per table
type MergeCounts struct {
	Products int64 `json:"products"`
	Orders   int64 `json:"orders"`
	Users    int64 `json:"users"`
	Payments int64 `json:"payments"`
}

// StoreMergeResult reports a same-store merge
type StoreMergeResult struct {
	PrimaryID    int64       `json:"primaryId"`
	DuplicateIDs []int64     `json:"duplicateIds"`
	Moved        MergeCounts `json:"moved"`
	Deleted      int64       `json:"deleted"`
	DryRun       bool        `json:"dryRun"`
}

type MergedRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

type PrimaryRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CRMMergeResult reports a CRM-only merge (duplicates archived)
type CRMMergeResult struct {
	Primary *PrimaryRecord `json:"primary"`
	Merged  []MergedRecord `json:"merged"`
	Errors  []string       `json:"errors"`
	DryRun  bool           `json:"dryRun"`
}

type CleanupMatch struct {
	CSCartID  int64  `json:"cscartId"`
	HubSpotID string `json:"hubspotId"`
}

// CleanupResult reports archiving of CRM companies whose store rows were merged away
type CleanupResult struct {
	Found   []CleanupMatch `json:"found"`
	Deleted []CleanupMatch `json:"deleted"`
	Errors  []string       `json:"errors"`
	DryRun  bool           `json:"dryRun"`
}
