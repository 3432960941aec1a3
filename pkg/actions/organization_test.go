package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
)

func TestSplitFocusAreas(t *testing.T) {
	assert.Equal(t, []string{"Education", "Health"}, SplitFocusAreas(" Education, ,Health,Education "))
	assert.Empty(t, SplitFocusAreas(""))
}

func TestUpdateOrganizationRequiresAdmin(t *testing.T) {
	svc, c := configuredService()
	c.store.On("GetProfile", mock.Anything, "u-1").
		Return(&models.Profile{ID: "u-1", OrganizationID: "org-1", Role: models.RoleStaff}, nil)

	res := svc.UpdateOrganization(context.Background(), staff, UpdateOrganizationInput{Name: "Helping Hands"})

	assert.Equal(t, FailureForbidden, res.Failure)
	assert.Equal(t, "Only administrators can update the organization", res.Error)
	c.store.AssertNotCalled(t, "UpdateOrganization", mock.Anything, mock.Anything)
}

func TestUpdateOrganizationWithoutProfile(t *testing.T) {
	svc, c := configuredService()
	c.store.On("GetProfile", mock.Anything, "u-1").Return(nil, database.ErrNotFound)

	res := svc.UpdateOrganization(context.Background(), staff, UpdateOrganizationInput{Name: "Helping Hands"})

	assert.Equal(t, FailureForbidden, res.Failure)
	assert.Equal(t, "Your account is not linked to an organization", res.Error)
}

func TestUpdateOrganization(t *testing.T) {
	svc, c := configuredService()
	c.store.On("GetProfile", mock.Anything, "u-1").
		Return(&models.Profile{ID: "u-1", OrganizationID: "org-1", Role: models.RoleAdmin}, nil)
	c.store.On("UpdateOrganization", mock.Anything, mock.MatchedBy(func(o *models.Organization) bool {
		return o.ID == "org-1" &&
			o.Name == "Helping Hands" &&
			o.Mission != nil && *o.Mission == "Literacy for all" &&
			assert.ObjectsAreEqual([]string{"Education", "Youth"}, o.FocusAreas)
	})).Return(nil)

	res := svc.UpdateOrganization(context.Background(), staff, UpdateOrganizationInput{
		Name: "Helping Hands", Mission: "Literacy for all", FocusAreas: "Education, Youth",
	})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []string{models.RouteOrganization, models.RouteDashboard}, res.Revalidate)
	c.assertExpectations(t)
}

func TestUpdateProfile(t *testing.T) {
	svc, c := configuredService()

	assert.Equal(t, "Full name is required",
		svc.UpdateProfile(context.Background(), staff, UpdateProfileInput{FullName: " "}).Error)

	c.store.On("GetProfile", mock.Anything, "u-1").
		Return(&models.Profile{ID: "u-1", OrganizationID: "org-1", Role: models.RoleVolunteer}, nil)
	c.store.On("UpdateProfile", mock.Anything, mock.MatchedBy(func(p *models.Profile) bool {
		return p.DisplayName() == "Ada Lovelace" && p.Role == models.RoleVolunteer
	})).Return(nil)

	res := svc.UpdateProfile(context.Background(), staff, UpdateProfileInput{FullName: "Ada Lovelace"})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []string{models.RouteSettings, models.RouteOrganization}, res.Revalidate)
	c.assertExpectations(t)
}
