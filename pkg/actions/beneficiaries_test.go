package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
)

var staff = models.Caller{UserID: "u-1", Email: "ada@example.org", AccessToken: "at"}

func TestAddBeneficiaryMissingFieldsMakeNoBackendCall(t *testing.T) {
	inputs := []AddBeneficiaryInput{
		{ProgramType: "Literacy", EnrolledDate: "2024-01-15"},
		{Name: "Maria", EnrolledDate: "2024-01-15"},
		{Name: "Maria", ProgramType: "Literacy"},
		{Name: "   ", ProgramType: "Literacy", EnrolledDate: "2024-01-15"},
	}
	for _, in := range inputs {
		svc, c := configuredService()
		res := svc.AddBeneficiary(context.Background(), staff, in)

		assert.Equal(t, "Name, program type, and enrolled date are required", res.Error)
		assert.Empty(t, c.callers)
		c.store.AssertNotCalled(t, "AddBeneficiary", mock.Anything, mock.Anything)
	}
}

func TestAddBeneficiaryRejectsBadInput(t *testing.T) {
	svc, c := configuredService()

	res := svc.AddBeneficiary(context.Background(), staff, AddBeneficiaryInput{Name: "Maria", ProgramType: "Literacy", EnrolledDate: "15/01/2024"})
	assert.Equal(t, "Enrolled date must be a valid date (YYYY-MM-DD)", res.Error)

	res = svc.AddBeneficiary(context.Background(), staff, AddBeneficiaryInput{Name: "Maria", ProgramType: "Literacy", EnrolledDate: "2024-01-15", Status: "retired"})
	assert.Equal(t, "Status must be one of active, graduated, or inactive", res.Error)

	assert.Empty(t, c.callers)
}

func TestAddBeneficiaryDefaultsToActive(t *testing.T) {
	svc, c := configuredService()
	c.store.On("AddBeneficiary", mock.Anything, models.NewBeneficiary{
		Name:         "Maria Garcia",
		ProgramType:  "Literacy",
		EnrolledDate: "2024-01-15",
		Status:       models.StatusActive,
	}).Return(&database.RPCResult{Success: true, ID: "b-1"}, nil).Once()

	res := svc.AddBeneficiary(context.Background(), staff, AddBeneficiaryInput{
		Name:         " Maria Garcia ",
		ProgramType:  "Literacy",
		EnrolledDate: "2024-01-15",
	})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []string{models.RouteBeneficiaries, models.RouteDashboard}, res.Revalidate)
	assert.Equal(t, map[string]string{"id": "b-1"}, res.Data)
	require.Len(t, c.callers, 1)
	assert.Equal(t, staff, c.callers[0])
	c.assertExpectations(t)
}

func TestAddBeneficiaryProcedureFailures(t *testing.T) {
	tests := []struct {
		name    string
		result  *database.RPCResult
		err     error
		wantErr string
	}{
		{"transport", nil, errors.New("dial tcp: i/o timeout"), "Failed to add beneficiary. Please try again."},
		{"no organization", &database.RPCResult{Success: false, Error: "User is not associated with an organization"}, nil, "User is not associated with an organization"},
		{"rejected without message", &database.RPCResult{}, nil, "Failed to add beneficiary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, c := configuredService()
			c.store.On("AddBeneficiary", mock.Anything, mock.Anything).Return(tt.result, tt.err)

			res := svc.AddBeneficiary(context.Background(), staff, AddBeneficiaryInput{
				Name: "Maria", ProgramType: "Literacy", EnrolledDate: "2024-01-15", Status: "graduated",
			})
			assert.Equal(t, tt.wantErr, res.Error)
			assert.Equal(t, FailureBackend, res.Failure)
			assert.Empty(t, res.Revalidate)
		})
	}
}
