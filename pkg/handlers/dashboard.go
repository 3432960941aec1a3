package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

const (
	recentStories    = 5
	storyNotesLength = 160
)

// DashboardView 仪表盘数据
type DashboardView struct {
	TotalBeneficiaries    int         `json:"total_beneficiaries"`
	ActiveBeneficiaries   int         `json:"active_beneficiaries"`
	StoryUpdatesThisMonth int         `json:"story_updates_this_month"`
	ReportsGenerated      int         `json:"reports_generated"`
	SuccessRate           string      `json:"success_rate"`
	RecentStories         []StoryCard `json:"recent_stories"`
}

// StoryCard is a story update shaped for display.
type StoryCard struct {
	ID              string         `json:"id"`
	BeneficiaryID   string         `json:"beneficiary_id"`
	BeneficiaryName string         `json:"beneficiary_name"`
	Date            string         `json:"date"`
	DisplayDate     string         `json:"display_date"`
	RelativeDate    string         `json:"relative_date"`
	Notes           string         `json:"notes"`
	PhotoURL        *string        `json:"photo_url"`
	Metrics         models.Metrics `json:"metrics"`
}

func storyCards(stories []models.StoryUpdate, now time.Time) []StoryCard {
	return lo.Map(stories, func(s models.StoryUpdate, _ int) StoryCard {
		card := StoryCard{
			ID:            s.ID,
			BeneficiaryID: s.BeneficiaryID,
			Date:          s.Date,
			DisplayDate:   utils.FormatDate(s.Date, utils.DateLayoutShort),
			RelativeDate:  utils.FormatRelativeDate(s.Date, now),
			Notes:         utils.Truncate(s.Notes, storyNotesLength),
			PhotoURL:      s.PhotoURL,
			Metrics:       s.Metrics,
		}
		if s.Beneficiary != nil {
			card.BeneficiaryName = s.Beneficiary.Name
		}
		return card
	})
}

// Dashboard GET /api/dashboard
func (h *Handler) Dashboard() http.HandlerFunc {
	return h.view(models.RouteDashboard, func(ctx context.Context, store database.Store, _ models.Caller, _ *http.Request) (utils.APIResponse, error) {
		now := h.now().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(utils.DateLayoutISO)

		var (
			view                        DashboardView
			active, graduated, inactive int
			recent                      []models.StoryUpdate
		)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			view.TotalBeneficiaries, err = store.CountBeneficiaries(ctx, "")
			return err
		})
		g.Go(func() (err error) {
			active, err = store.CountBeneficiaries(ctx, models.StatusActive)
			return err
		})
		g.Go(func() (err error) {
			graduated, err = store.CountBeneficiaries(ctx, models.StatusGraduated)
			return err
		})
		g.Go(func() (err error) {
			inactive, err = store.CountBeneficiaries(ctx, models.StatusInactive)
			return err
		})
		g.Go(func() (err error) {
			view.StoryUpdatesThisMonth, err = store.CountStoryUpdates(ctx, monthStart)
			return err
		})
		g.Go(func() (err error) {
			view.ReportsGenerated, err = store.CountReports(ctx)
			return err
		})
		g.Go(func() (err error) {
			recent, err = store.ListStoryUpdates(ctx, database.ListOptions{Limit: recentStories})
			return err
		})
		if err := g.Wait(); err != nil {
			return utils.APIResponse{}, err
		}

		view.ActiveBeneficiaries = active
		// Completion rate over everyone who has been enrolled.
		view.SuccessRate = utils.Percentage(graduated, active+graduated+inactive)
		view.RecentStories = storyCards(recent, now)
		return viewData(view), nil
	})
}
