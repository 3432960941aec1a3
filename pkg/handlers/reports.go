package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// ReportCard is a report shaped for the list page.
type ReportCard struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	ReportType         models.ReportType    `json:"report_type"`
	GeneratedAt        time.Time            `json:"generated_at"`
	GeneratedAtDisplay string               `json:"generated_at_display"`
	Content            models.ReportContent `json:"content"`
}

// CreateReport POST /reports
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.CreateReport(r.Context(), middleware.CallerFromContext(r.Context()), actions.CreateReportInput{
		Title:      r.PostFormValue("title"),
		ReportType: r.PostFormValue("reportType"),
		From:       r.PostFormValue("from"),
		To:         r.PostFormValue("to"),
	})
	h.respond(w, r, res)
}

// ListReports GET /api/reports?page=&per_page=
func (h *Handler) ListReports() http.HandlerFunc {
	return h.view(models.RouteReports, func(ctx context.Context, store database.Store, _ models.Caller, r *http.Request) (utils.APIResponse, error) {
		page, perPage := paging(r)

		var (
			reports []models.Report
			total   int
		)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			reports, err = store.ListReports(ctx, database.ListOptions{Limit: perPage, Offset: (page - 1) * perPage})
			return err
		})
		g.Go(func() (err error) {
			total, err = store.CountReports(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return utils.APIResponse{}, err
		}

		cards := lo.Map(reports, func(rep models.Report, _ int) ReportCard {
			return ReportCard{
				ID:                 rep.ID,
				Title:              rep.Title,
				ReportType:         rep.ReportType,
				GeneratedAt:        rep.GeneratedAt,
				GeneratedAtDisplay: rep.GeneratedAt.Format(utils.DateLayoutFull),
				Content:            rep.Content,
			}
		})
		return utils.PaginatedResponse(cards, page, perPage, total), nil
	})
}
