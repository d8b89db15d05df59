package models

// SourceUser is an active admin or vendor account owned by a company
type SourceUser struct {
	ID        int64   `json:"user_id" db:"user_id"`
	Login     string  `json:"user_login" db:"user_login"`
	Email     *string `json:"email" db:"email"`
	FirstName *string `json:"firstname" db:"firstname"`
	LastName  *string `json:"lastname" db:"lastname"`
	Phone     *string `json:"phone" db:"phone"`
	CompanyID int64   `json:"company_id" db:"company_id"`
	LastLogin *int64  `json:"last_login" db:"last_login"` // epoch seconds, 0 or NULL = never
}
