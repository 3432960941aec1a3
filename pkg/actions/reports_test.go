package actions

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
)

func reportFixtures() ([]models.Beneficiary, []models.StoryUpdate) {
	beneficiaries := []models.Beneficiary{
		{ID: "b-1", Name: "Maria", ProgramType: "Literacy", Status: models.StatusActive},
		{ID: "b-2", Name: "James", ProgramType: "Job Training", Status: models.StatusGraduated},
		{ID: "b-3", Name: "Lena", ProgramType: "Literacy", Status: models.StatusInactive},
	}
	photo := "https://cdn.example/p.jpg"
	stories := []models.StoryUpdate{
		{ID: "s-1", BeneficiaryID: "b-1", Date: "2024-03-05", Notes: "newest"},
		{ID: "s-2", BeneficiaryID: "b-2", Date: "2024-03-04", Notes: "with photo", PhotoURL: &photo},
		{ID: "s-3", BeneficiaryID: "b-1", Date: "2024-03-03", Notes: "older"},
	}
	return beneficiaries, stories
}

func TestBuildReportContent(t *testing.T) {
	beneficiaries, stories := reportFixtures()

	content := BuildReportContent(beneficiaries, stories, "2024-03-01", "2024-03-31")

	assert.Equal(t, models.ReportSummary{
		Beneficiaries: 3, Active: 1, Graduated: 1, Inactive: 1, StoryUpdates: 3, WithPhotos: 1,
	}, content.Summary)
	assert.Equal(t, []models.ProgramTotals{
		{ProgramType: "Job Training", Beneficiaries: 1, StoryUpdates: 1},
		{ProgramType: "Literacy", Beneficiaries: 2, StoryUpdates: 2},
	}, content.Programs)

	ids := lo.Map(content.Highlights, func(h models.StoryHighlight, _ int) string { return h.StoryID })
	assert.Equal(t, []string{"s-2", "s-1", "s-3"}, ids)
	assert.Equal(t, "James", content.Highlights[0].BeneficiaryName)
	assert.Equal(t, "2024-03-01", content.PeriodStart)
}

func TestBuildReportContentCapsHighlights(t *testing.T) {
	stories := make([]models.StoryUpdate, 8)
	for i := range stories {
		stories[i] = models.StoryUpdate{ID: string(rune('a' + i)), Beneficiary: &models.Beneficiary{Name: "Embedded", ProgramType: "Arts"}}
	}

	content := BuildReportContent(nil, stories, "", "")

	assert.Len(t, content.Highlights, reportHighlights)
	assert.Equal(t, "Embedded", content.Highlights[0].BeneficiaryName)
	assert.Equal(t, []models.ProgramTotals{{ProgramType: "Arts", StoryUpdates: 8}}, content.Programs)
}

func TestCreateReportValidation(t *testing.T) {
	svc, c := configuredService()
	ctx := context.Background()

	assert.Equal(t, "Title and report type are required",
		svc.CreateReport(ctx, staff, CreateReportInput{ReportType: "donor"}).Error)
	assert.Equal(t, "Report type must be one of donor, grant, board, or social",
		svc.CreateReport(ctx, staff, CreateReportInput{Title: "Q1", ReportType: "annual"}).Error)
	assert.Equal(t, "Report period dates must be valid dates (YYYY-MM-DD)",
		svc.CreateReport(ctx, staff, CreateReportInput{Title: "Q1", ReportType: "donor", From: "March"}).Error)
	assert.Equal(t, "Report period start must not be after its end",
		svc.CreateReport(ctx, staff, CreateReportInput{Title: "Q1", ReportType: "donor", From: "2024-04-01", To: "2024-03-01"}).Error)
	assert.Empty(t, c.callers)
}

func TestCreateReport(t *testing.T) {
	svc, c := configuredService()
	beneficiaries, stories := reportFixtures()

	c.store.On("CurrentUserOrgID", mock.Anything).Return("org-1", nil)
	c.store.On("ListBeneficiaries", mock.Anything, database.ListOptions{}).Return(beneficiaries, nil)
	c.store.On("ListStoryUpdates", mock.Anything, database.ListOptions{Since: "2024-03-01", Until: "2024-03-31"}).Return(stories, nil)
	c.store.On("CreateReport", mock.Anything, mock.MatchedBy(func(r *models.Report) bool {
		return r.OrganizationID == "org-1" &&
			r.Title == "Q1 Donors" &&
			r.ReportType == models.ReportDonor &&
			r.GeneratedBy == "u-1" &&
			r.GeneratedAt.Equal(testNow) &&
			r.Content.Summary.StoryUpdates == 3
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Report).ID = "r-1"
	}).Return(nil)

	res := svc.CreateReport(context.Background(), staff, CreateReportInput{
		Title: "Q1 Donors", ReportType: "donor", From: "2024-03-01", To: "2024-03-31",
	})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []string{models.RouteReports, models.RouteDashboard}, res.Revalidate)
	assert.Equal(t, map[string]string{"id": "r-1"}, res.Data)
	c.assertExpectations(t)
}
