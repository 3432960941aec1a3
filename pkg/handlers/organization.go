package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/lo"

	"impact-story-backend/pkg/actions"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/middleware"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// MemberView is a team member on the organization page.
type MemberView struct {
	ID       string          `json:"id"`
	FullName string          `json:"full_name"`
	Initials string          `json:"initials"`
	Role     models.UserRole `json:"role"`
	Joined   string          `json:"joined"`
}

// ==== helpers ====

// callerProfile loads the caller's profile. A caller without one is not part of
// any organization.
func callerProfile(ctx context.Context, store database.Store, caller models.Caller) (*models.Profile, error) {
	profile, err := store.GetProfile(ctx, caller.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &viewError{status: http.StatusForbidden, message: "Your account is not linked to an organization"}
	}
	return profile, err
}

// UpdateOrganization POST /organization
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.UpdateOrganization(r.Context(), middleware.CallerFromContext(r.Context()), actions.UpdateOrganizationInput{
		Name:       r.PostFormValue("name"),
		Mission:    r.PostFormValue("mission"),
		FocusAreas: r.PostFormValue("focusAreas"),
	})
	h.respond(w, r, res)
}

// UpdateProfile POST /settings
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res := h.actions.UpdateProfile(r.Context(), middleware.CallerFromContext(r.Context()), actions.UpdateProfileInput{
		FullName:  r.PostFormValue("fullName"),
		AvatarURL: r.PostFormValue("avatarUrl"),
	})
	h.respond(w, r, res)
}

// Organization GET /api/organization
func (h *Handler) Organization() http.HandlerFunc {
	return h.view(models.RouteOrganization, func(ctx context.Context, store database.Store, caller models.Caller, _ *http.Request) (utils.APIResponse, error) {
		profile, err := callerProfile(ctx, store, caller)
		if err != nil {
			return utils.APIResponse{}, err
		}
		org, err := store.GetOrganization(ctx, profile.OrganizationID)
		if err != nil {
			return utils.APIResponse{}, err
		}
		members, err := store.ListProfiles(ctx, profile.OrganizationID)
		if err != nil {
			return utils.APIResponse{}, err
		}

		return viewData(map[string]interface{}{
			"organization": org,
			"members": lo.Map(members, func(p models.Profile, _ int) MemberView {
				return MemberView{
					ID:       p.ID,
					FullName: p.DisplayName(),
					Initials: utils.Initials(p.DisplayName()),
					Role:     p.Role,
					Joined:   p.CreatedAt.Format(utils.DateLayoutMonth),
				}
			}),
			"can_edit": profile.Role == models.RoleAdmin,
		}), nil
	})
}

// Settings GET /api/settings
func (h *Handler) Settings() http.HandlerFunc {
	return h.view(models.RouteSettings, func(ctx context.Context, store database.Store, caller models.Caller, _ *http.Request) (utils.APIResponse, error) {
		profile, err := callerProfile(ctx, store, caller)
		if err != nil {
			return utils.APIResponse{}, err
		}
		return viewData(map[string]interface{}{
			"email":    caller.Email,
			"profile":  profile,
			"initials": utils.Initials(profile.DisplayName()),
		}), nil
	})
}
