package actions

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// Number of stories quoted in a report.
const reportHighlights = 5

type CreateReportInput struct {
	Title      string
	ReportType string
	// Optional inclusive period, YYYY-MM-DD.
	From string
	To   string
}

// CreateReport aggregates the organization's beneficiaries and story updates for
// a period and stores the result as a report.
func (s *Service) CreateReport(ctx context.Context, caller models.Caller, in CreateReportInput) (res Result) {
	log, done := s.begin(ctx, "create_report")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.ReportType) == "" {
		return invalid("Title and report type are required")
	}
	reportType, err := models.ParseReportType(strings.TrimSpace(in.ReportType))
	if err != nil {
		return invalid("Report type must be one of donor, grant, board, or social")
	}
	from, to := strings.TrimSpace(in.From), strings.TrimSpace(in.To)
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(utils.DateLayoutISO, d); err != nil {
			return invalid("Report period dates must be valid dates (YYYY-MM-DD)")
		}
	}
	// ISO dates order lexically.
	if from != "" && to != "" && from > to {
		return invalid("Report period start must not be after its end")
	}

	store := client.Store(caller)
	orgID, err := store.CurrentUserOrgID(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to resolve organization")
		return fail(FailureBackend, "Failed to create report. Please try again.")
	}
	beneficiaries, err := store.ListBeneficiaries(ctx, database.ListOptions{})
	if err != nil {
		log.WithError(err).Error("Failed to load beneficiaries")
		return fail(FailureBackend, "Failed to create report. Please try again.")
	}
	stories, err := store.ListStoryUpdates(ctx, database.ListOptions{Since: from, Until: to})
	if err != nil {
		log.WithError(err).Error("Failed to load story updates")
		return fail(FailureBackend, "Failed to create report. Please try again.")
	}

	report := &models.Report{
		OrganizationID: orgID,
		Title:          title,
		ReportType:     reportType,
		Content:        BuildReportContent(beneficiaries, stories, from, to),
		GeneratedAt:    s.now().UTC(),
		GeneratedBy:    caller.UserID,
	}
	if err := store.CreateReport(ctx, report); err != nil {
		log.WithError(err).Error("Failed to insert report")
		return fail(FailureBackend, "Failed to create report. Please try again.")
	}

	return Result{
		Revalidate: []string{models.RouteReports, models.RouteDashboard},
		Data:       map[string]string{"id": report.ID},
	}
}

// BuildReportContent summarises beneficiaries and the story updates of a period.
// stories are expected newest first.
func BuildReportContent(beneficiaries []models.Beneficiary, stories []models.StoryUpdate, from, to string) models.ReportContent {
	content := models.ReportContent{
		PeriodStart: from,
		PeriodEnd:   to,
		Programs:    []models.ProgramTotals{},
		Highlights:  []models.StoryHighlight{},
	}

	byID := lo.KeyBy(beneficiaries, func(b models.Beneficiary) string { return b.ID })

	content.Summary.Beneficiaries = len(beneficiaries)
	for _, b := range beneficiaries {
		switch b.Status {
		case models.StatusActive:
			content.Summary.Active++
		case models.StatusGraduated:
			content.Summary.Graduated++
		case models.StatusInactive:
			content.Summary.Inactive++
		}
	}
	content.Summary.StoryUpdates = len(stories)
	content.Summary.WithPhotos = lo.CountBy(stories, func(st models.StoryUpdate) bool {
		return st.PhotoURL != nil && *st.PhotoURL != ""
	})

	programs := map[string]*models.ProgramTotals{}
	program := func(name string) *models.ProgramTotals {
		if p, ok := programs[name]; ok {
			return p
		}
		p := &models.ProgramTotals{ProgramType: name}
		programs[name] = p
		return p
	}
	for _, b := range beneficiaries {
		program(b.ProgramType).Beneficiaries++
	}
	for _, st := range stories {
		if b, ok := byID[st.BeneficiaryID]; ok {
			program(b.ProgramType).StoryUpdates++
		} else if st.Beneficiary != nil {
			program(st.Beneficiary.ProgramType).StoryUpdates++
		}
	}
	for _, name := range lo.Keys(programs) {
		content.Programs = append(content.Programs, *programs[name])
	}
	sort.Slice(content.Programs, func(i, j int) bool {
		return content.Programs[i].ProgramType < content.Programs[j].ProgramType
	})

	// Stories with photos are quoted first, otherwise newest first.
	ordered := make([]models.StoryUpdate, len(stories))
	copy(ordered, stories)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi := ordered[i].PhotoURL != nil && *ordered[i].PhotoURL != ""
		pj := ordered[j].PhotoURL != nil && *ordered[j].PhotoURL != ""
		return pi && !pj
	})
	for _, st := range lo.Slice(ordered, 0, reportHighlights) {
		name := ""
		if b, ok := byID[st.BeneficiaryID]; ok {
			name = b.Name
		} else if st.Beneficiary != nil {
			name = st.Beneficiary.Name
		}
		content.Highlights = append(content.Highlights, models.StoryHighlight{
			StoryID:         st.ID,
			BeneficiaryName: name,
			Date:            st.Date,
			Notes:           st.Notes,
			PhotoURL:        st.PhotoURL,
			Metrics:         st.Metrics,
		})
	}

	return content
}
