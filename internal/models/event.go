package models

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseFetch     Phase = "fetch"
	PhaseCompanies Phase = "companies"
	PhaseContacts  Phase = "contacts"
)

// Event is one entry of a sync run's append-only log. Order is completion order.
type Event struct {
	RunID      string     `json:"runId"`
	Time       time.Time  `json:"time"`
	Level      Level      `json:"level"`
	Phase      Phase      `json:"phase"`
	Object     ObjectType `json:"object,omitempty"`
	ExternalID int64      `json:"externalId,omitempty"`
	TargetID   string     `json:"targetId,omitempty"`
	Action     string     `json:"action,omitempty"`
	Message    string     `json:"message"`
}

// PhaseStats counts per-record outcomes of one phase
type PhaseStats struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
	Associated int `json:"associated,omitempty"`
}

// Result is the terminal aggregate of a sync run.
//
// CompaniesProcessed and UsersProcessed count records attempted, not records that
// succeeded. Outcomes are in Companies/Users and in the event log.
type Result struct {
	CompaniesProcessed int        `json:"companiesProcessed"`
	UsersProcessed     int        `json:"usersProcessed"`
	Companies          PhaseStats `json:"companies"`
	Users              PhaseStats `json:"users"`
}
