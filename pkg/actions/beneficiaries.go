package actions

import (
	"context"
	"strings"
	"time"

	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

type AddBeneficiaryInput struct {
	Name         string
	ProgramType  string
	EnrolledDate string
	Status       string
}

// AddBeneficiary registers a beneficiary in the caller's organization. The
// organization is resolved by the add_beneficiary procedure from the caller's
// identity, never from the submitted form.
func (s *Service) AddBeneficiary(ctx context.Context, caller models.Caller, in AddBeneficiaryInput) (res Result) {
	log, done := s.begin(ctx, "add_beneficiary")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	name := strings.TrimSpace(in.Name)
	programType := strings.TrimSpace(in.ProgramType)
	enrolledDate := strings.TrimSpace(in.EnrolledDate)
	if name == "" || programType == "" || enrolledDate == "" {
		return invalid("Name, program type, and enrolled date are required")
	}
	if _, err := time.Parse(utils.DateLayoutISO, enrolledDate); err != nil {
		return invalid("Enrolled date must be a valid date (YYYY-MM-DD)")
	}
	status, err := models.ParseBeneficiaryStatus(strings.TrimSpace(in.Status))
	if err != nil {
		return invalid("Status must be one of active, graduated, or inactive")
	}

	result, err := client.Store(caller).AddBeneficiary(ctx, models.NewBeneficiary{
		Name:         name,
		ProgramType:  programType,
		EnrolledDate: enrolledDate,
		Status:       status,
	})
	if err != nil {
		log.WithError(err).Error("Error calling add_beneficiary")
		return fail(FailureBackend, "Failed to add beneficiary. Please try again.")
	}
	if result == nil || !result.Success {
		msg := "Failed to add beneficiary"
		if result != nil && result.Error != "" {
			msg = result.Error
		}
		log.WithField("rpc_error", msg).Error("add_beneficiary returned error")
		return fail(FailureBackend, msg)
	}

	return Result{
		Revalidate: []string{models.RouteBeneficiaries, models.RouteDashboard},
		Data:       map[string]string{"id": result.ID},
	}
}
