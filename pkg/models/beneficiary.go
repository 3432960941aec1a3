package models

import (
	"fmt"
	"time"
)

type BeneficiaryStatus string

const (
	StatusActive    BeneficiaryStatus = "active"
	StatusGraduated BeneficiaryStatus = "graduated"
	StatusInactive  BeneficiaryStatus = "inactive"
)

// BeneficiaryStatuses lists statuses in display order.
var BeneficiaryStatuses = []BeneficiaryStatus{StatusActive, StatusGraduated, StatusInactive}

// ParseBeneficiaryStatus accepts a submitted status. Empty means active.
func ParseBeneficiaryStatus(s string) (BeneficiaryStatus, error) {
	if s == "" {
		return StatusActive, nil
	}
	switch st := BeneficiaryStatus(s); st {
	case StatusActive, StatusGraduated, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Beneficiary is a program participant of one organization.
type Beneficiary struct {
	ID             string                 `json:"id" db:"id"`
	OrganizationID string                 `json:"organization_id" db:"organization_id"`
	Name           string                 `json:"name" db:"name"`
	ProgramType    string                 `json:"program_type" db:"program_type"`
	EnrolledDate   string                 `json:"enrolled_date" db:"enrolled_date"` // YYYY-MM-DD
	Demographics   map[string]interface{} `json:"demographics" db:"-"`
	Status         BeneficiaryStatus      `json:"status" db:"status"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// NewBeneficiary is the input of the add_beneficiary procedure.
type NewBeneficiary struct {
	Name         string            `json:"p_name"`
	ProgramType  string            `json:"p_program_type"`
	EnrolledDate string            `json:"p_enrolled_date"`
	Status       BeneficiaryStatus `json:"p_status"`
}
