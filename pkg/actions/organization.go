package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
)

type UpdateOrganizationInput struct {
	Name    string
	Mission string
	// FocusAreas is a comma-separated list.
	FocusAreas string
}

type UpdateProfileInput struct {
	FullName  string
	AvatarURL string
}

// SplitFocusAreas parses a comma-separated list, dropping blanks and duplicates.
func SplitFocusAreas(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Uniq(lo.Compact(parts))
}

// UpdateOrganization edits the caller's organization. Only admins may do this.
func (s *Service) UpdateOrganization(ctx context.Context, caller models.Caller, in UpdateOrganizationInput) (res Result) {
	log, done := s.begin(ctx, "update_organization")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("Organization name is required")
	}

	store := client.Store(caller)
	profile, err := store.GetProfile(ctx, caller.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return fail(FailureForbidden, "Your account is not linked to an organization")
	}
	if err != nil {
		log.WithError(err).Error("Failed to load profile")
		return fail(FailureBackend, "Failed to update organization. Please try again.")
	}
	if profile.Role != models.RoleAdmin {
		return fail(FailureForbidden, "Only administrators can update the organization")
	}

	org := &models.Organization{
		ID:         profile.OrganizationID,
		Name:       name,
		FocusAreas: SplitFocusAreas(in.FocusAreas),
	}
	if mission := strings.TrimSpace(in.Mission); mission != "" {
		org.Mission = &mission
	}

	err = store.UpdateOrganization(ctx, org)
	if errors.Is(err, database.ErrNotFound) {
		return fail(FailureForbidden, "Only administrators can update the organization")
	}
	if err != nil {
		log.WithError(err).Error("Failed to update organization")
		return fail(FailureBackend, "Failed to update organization. Please try again.")
	}

	return Result{
		Revalidate: []string{models.RouteOrganization, models.RouteDashboard},
		Data:       org,
	}
}

// UpdateProfile edits the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, caller models.Caller, in UpdateProfileInput) (res Result) {
	log, done := s.begin(ctx, "update_profile")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return invalid("Full name is required")
	}

	store := client.Store(caller)
	profile, err := store.GetProfile(ctx, caller.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return fail(FailureForbidden, "Your account is not linked to an organization")
	}
	if err != nil {
		log.WithError(err).Error("Failed to load profile")
		return fail(FailureBackend, "Failed to update profile. Please try again.")
	}

	profile.FullName = &fullName
	if avatar := strings.TrimSpace(in.AvatarURL); avatar != "" {
		profile.AvatarURL = &avatar
	}
	if err := store.UpdateProfile(ctx, profile); err != nil {
		log.WithError(err).Error("Failed to update profile")
		return fail(FailureBackend, "Failed to update profile. Please try again.")
	}

	return Result{
		Revalidate: []string{models.RouteSettings, models.RouteOrganization},
		Data:       profile,
	}
}
