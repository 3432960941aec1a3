package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// BeneficiaryRow is a beneficiary shaped for the list page.
type BeneficiaryRow struct {
	ID                  string                   `json:"id"`
	Name                string                   `json:"name"`
	Initials            string                   `json:"initials"`
	ProgramType         string                   `json:"program_type"`
	Status              models.BeneficiaryStatus `json:"status"`
	EnrolledDate        string                   `json:"enrolled_date"`
	EnrolledDateDisplay string                   `json:"enrolled_date_display"`
}

func beneficiaryRow(b models.Beneficiary) BeneficiaryRow {
	return BeneficiaryRow{
		ID:                  b.ID,
		Name:                b.Name,
		Initials:            utils.Initials(b.Name),
		ProgramType:         b.ProgramType,
		Status:              b.Status,
		EnrolledDate:        b.EnrolledDate,
		EnrolledDateDisplay: utils.FormatDate(b.EnrolledDate, utils.DateLayoutShort),
	}
}

// AddBeneficiary POST /beneficiaries
func (h *Handler) AddBeneficiary(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.AddBeneficiary(r.Context(), middleware.CallerFromContext(r.Context()), actions.AddBeneficiaryInput{
		Name:         r.PostFormValue("name"),
		ProgramType:  r.PostFormValue("programType"),
		EnrolledDate: r.PostFormValue("enrolledDate"),
		Status:       r.PostFormValue("status"),
	})
	h.respond(w, r, res)
}

// ListBeneficiaries GET /api/beneficiaries?page=&per_page=&status=
func (h *Handler) ListBeneficiaries() http.HandlerFunc {
	return h.view(models.RouteBeneficiaries, func(ctx context.Context, store database.Store, _ models.Caller, r *http.Request) (utils.APIResponse, error) {
		page, perPage := paging(r)

		var status models.BeneficiaryStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" && raw != "all" {
			st, err := models.ParseBeneficiaryStatus(raw)
			if err != nil {
				return utils.APIResponse{}, badRequest("Status must be one of active, graduated, or inactive")
			}
			status = st
		}

		var (
			rows  []models.Beneficiary
			total int
		)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			rows, err = store.ListBeneficiaries(ctx, database.ListOptions{
				Limit:  perPage,
				Offset: (page - 1) * perPage,
				Status: status,
			})
			return err
		})
		g.Go(func() (err error) {
			total, err = store.CountBeneficiaries(ctx, status)
			return err
		})
		if err := g.Wait(); err != nil {
			return utils.APIResponse{}, err
		}

		return utils.PaginatedResponse(lo.Map(rows, func(b models.Beneficiary, _ int) BeneficiaryRow {
			return beneficiaryRow(b)
		}), page, perPage, total), nil
	})
}

// GetBeneficiary GET /api/beneficiaries/{id}
//
// The page is made of the beneficiary and its story updates. Beneficiaries are
// never edited, so it is cached under the stories route.
func (h *Handler) GetBeneficiary() http.HandlerFunc {
	return h.view(models.RouteStories, func(ctx context.Context, store database.Store, _ models.Caller, r *http.Request) (utils.APIResponse, error) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			return utils.APIResponse{}, &viewError{status: http.StatusNotFound, message: "Beneficiary not found"}
		}

		b, err := store.GetBeneficiary(ctx, id)
		if err != nil {
			return utils.APIResponse{}, err
		}
		stories, err := store.ListStoryUpdates(ctx, database.ListOptions{BeneficiaryID: id})
		if err != nil {
			return utils.APIResponse{}, err
		}
		for i := range stories {
			if stories[i].Beneficiary == nil {
				stories[i].Beneficiary = b
			}
		}

		return viewData(map[string]interface{}{
			"beneficiary":  beneficiaryRow(*b),
			"demographics": b.Demographics,
			"stories":      storyCards(stories, h.now().UTC()),
		}), nil
	})
}
