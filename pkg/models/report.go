package models

import (
	"fmt"
	"time"
)

type ReportType string

const (
	ReportDonor  ReportType = "donor"
	ReportGrant  ReportType = "grant"
	ReportBoard  ReportType = "board"
	ReportSocial ReportType = "social"
)

func ParseReportType(s string) (ReportType, error) {
	switch t := ReportType(s); t {
	case ReportDonor, ReportGrant, ReportBoard, ReportSocial:
		return t, nil
	}
	return "", fmt.Errorf("invalid report type %q", s)
}

// Report is a generated impact report. Content is produced by the report builder.
type Report struct {
	ID             string        `json:"id,omitempty" db:"id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	Title          string        `json:"title" db:"title"`
	ReportType     ReportType    `json:"report_type" db:"report_type"`
	Content        ReportContent `json:"content" db:"-"`
	GeneratedAt    time.Time     `json:"generated_at" db:"generated_at"`
	GeneratedBy    string        `json:"generated_by" db:"generated_by"`
	CreatedAt      time.Time     `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at,omitempty" db:"updated_at"`
}

// ReportContent is the structured body of a report.
type ReportContent struct {
	PeriodStart string           `json:"period_start,omitempty"`
	PeriodEnd   string           `json:"period_end,omitempty"`
	Summary     ReportSummary    `json:"summary"`
	Programs    []ProgramTotals  `json:"programs"`
	Highlights  []StoryHighlight `json:"highlights"`
}

type ReportSummary struct {
	Beneficiaries int `json:"beneficiaries"`
	Active        int `json:"active"`
	Graduated     int `json:"graduated"`
	Inactive      int `json:"inactive"`
	StoryUpdates  int `json:"story_updates"`
	WithPhotos    int `json:"with_photos"`
}

type ProgramTotals struct {
	ProgramType   string `json:"program_type"`
	Beneficiaries int    `json:"beneficiaries"`
	StoryUpdates  int    `json:"story_updates"`
}

type StoryHighlight struct {
	StoryID         string  `json:"story_id"`
	BeneficiaryName string  `json:"beneficiary_name"`
	Date            string  `json:"date"`
	Notes           string  `json:"notes"`
	PhotoURL        *string `json:"photo_url,omitempty"`
	Metrics         Metrics `json:"metrics,omitempty"`
}
