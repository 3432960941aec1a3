package models

import "time"

// Metrics holds free-form measurements attached to a story update.
// Values are strings, numbers or booleans.
type Metrics map[string]interface{}

// StoryUpdate is a dated narrative about one beneficiary.
type StoryUpdate struct {
	ID            string    `json:"id,omitempty" db:"id"`
	BeneficiaryID string    `json:"beneficiary_id" db:"beneficiary_id"`
	Date          string    `json:"date" db:"date"` // YYYY-MM-DD
	PhotoURL      *string   `json:"photo_url" db:"photo_url"`
	Notes         string    `json:"notes" db:"notes"`
	Metrics       Metrics   `json:"metrics" db:"-"`
	CreatedBy     string    `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at,omitempty" db:"updated_at"`

	// Beneficiary is embedded by list queries that join the parent row.
	Beneficiary *Beneficiary `json:"beneficiary,omitempty" db:"-"`
}
