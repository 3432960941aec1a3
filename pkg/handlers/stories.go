package handlers

import (
	"context"
	"mime/multipart"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// metricFieldPrefix marks form fields carrying story metrics, e.g. "metric.attendance".
const metricFieldPrefix = "metric."

// AddStoryUpdate POST /stories (multipart when a photo is attached)
func (h *Handler) AddStoryUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	in := actions.AddStoryUpdateInput{
		BeneficiaryID: r.PostFormValue("beneficiaryId"),
		Date:          r.PostFormValue("date"),
		Notes:         r.PostFormValue("notes"),
		Metrics:       map[string]string{},
	}
	for key, values := range r.PostForm {
		if name, ok := strings.CutPrefix(key, metricFieldPrefix); ok && len(values) > 0 {
			in.Metrics[name] = values[0]
		}
	}

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["photo"]; len(files) > 0 && files[0].Filename != "" && files[0].Size > 0 {
			photo, closeFn, err := openPhoto(files[0])
			if err != nil {
				utils.WriteActionError(w, http.StatusBadRequest, "Invalid form submission")
				return
			}
			defer closeFn()
			in.Photo = photo
		}
	}

	res := h.actions.AddStoryUpdate(r.Context(), middleware.CallerFromContext(r.Context()), in)
	h.respond(w, r, res)
}

func openPhoto(fh *multipart.FileHeader) (*actions.Photo, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return &actions.Photo{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

// ListStories GET /api/stories?page=&per_page=
func (h *Handler) ListStories() http.HandlerFunc {
	return h.view(models.RouteStories, func(ctx context.Context, store database.Store, _ models.Caller, r *http.Request) (utils.APIResponse, error) {
		page, perPage := paging(r)

		var (
			stories []models.StoryUpdate
			total   int
		)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			stories, err = store.ListStoryUpdates(ctx, database.ListOptions{Limit: perPage, Offset: (page - 1) * perPage})
			return err
		})
		g.Go(func() (err error) {
			total, err = store.CountStoryUpdates(ctx, "")
			return err
		})
		if err := g.Wait(); err != nil {
			return utils.APIResponse{}, err
		}

		return utils.PaginatedResponse(storyCards(stories, h.now().UTC()), page, perPage, total), nil
	})
}
