package actions

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
)

type mockClient struct {
	auth   *mockAuth
	store  *mockStore
	photos *mockPhotos
	// callers records the caller of every Store call.
	callers []models.Caller
}

func newMockClient() *mockClient {
	return &mockClient{auth: &mockAuth{}, store: &mockStore{}, photos: &mockPhotos{}}
}

func (c *mockClient) Auth() database.AuthClient { return c.auth }
func (c *mockClient) Store(caller models.Caller) database.Store {
	c.callers = append(c.callers, caller)
	return c.store
}
func (c *mockClient) Photos() database.PhotoStore           { return c.photos }
func (c *mockClient) HealthCheck(ctx context.Context) error { return nil }
func (c *mockClient) Close() error                          { return nil }

func (c *mockClient) assertExpectations(t mock.TestingT) {
	c.auth.AssertExpectations(t)
	c.store.AssertExpectations(t)
	c.photos.AssertExpectations(t)
}

type mockAuth struct{ mock.Mock }

func (m *mockAuth) SignUp(ctx context.Context, params database.SignUpParams) (*models.AuthUser, *models.Session, error) {
	args := m.Called(ctx, params)
	user, _ := args.Get(0).(*models.AuthUser)
	session, _ := args.Get(1).(*models.Session)
	return user, session, args.Error(2)
}

func (m *mockAuth) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

func (m *mockAuth) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *mockAuth) GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	args := m.Called(ctx, accessToken)
	user, _ := args.Get(0).(*models.AuthUser)
	return user, args.Error(1)
}

func (m *mockAuth) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	args := m.Called(ctx, refreshToken)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

func (m *mockAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error {
	return m.Called(ctx, email, redirectTo, codeChallenge).Error(0)
}

func (m *mockAuth) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*models.Session, error) {
	args := m.Called(ctx, authCode, codeVerifier)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

func (m *mockAuth) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return m.Called(ctx, accessToken, password).Error(0)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) HandleNewUserSignup(ctx context.Context, userID, organizationName, fullName string) (*database.RPCResult, error) {
	args := m.Called(ctx, userID, organizationName, fullName)
	res, _ := args.Get(0).(*database.RPCResult)
	return res, args.Error(1)
}

func (m *mockStore) AddBeneficiary(ctx context.Context, in models.NewBeneficiary) (*database.RPCResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*database.RPCResult)
	return res, args.Error(1)
}

func (m *mockStore) CurrentUserOrgID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockStore) ListBeneficiaries(ctx context.Context, opts database.ListOptions) ([]models.Beneficiary, error) {
	args := m.Called(ctx, opts)
	rows, _ := args.Get(0).([]models.Beneficiary)
	return rows, args.Error(1)
}

func (m *mockStore) GetBeneficiary(ctx context.Context, id string) (*models.Beneficiary, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Beneficiary)
	return b, args.Error(1)
}

func (m *mockStore) CountBeneficiaries(ctx context.Context, status models.BeneficiaryStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CreateStoryUpdate(ctx context.Context, s *models.StoryUpdate) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStore) ListStoryUpdates(ctx context.Context, opts database.ListOptions) ([]models.StoryUpdate, error) {
	args := m.Called(ctx, opts)
	rows, _ := args.Get(0).([]models.StoryUpdate)
	return rows, args.Error(1)
}

func (m *mockStore) CountStoryUpdates(ctx context.Context, since string) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CreateReport(ctx context.Context, r *models.Report) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockStore) ListReports(ctx context.Context, opts database.ListOptions) ([]models.Report, error) {
	args := m.Called(ctx, opts)
	rows, _ := args.Get(0).([]models.Report)
	return rows, args.Error(1)
}

func (m *mockStore) CountReports(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	args := m.Called(ctx, id)
	org, _ := args.Get(0).(*models.Organization)
	return org, args.Error(1)
}

func (m *mockStore) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	return m.Called(ctx, org).Error(0)
}

func (m *mockStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.Profile)
	return p, args.Error(1)
}

func (m *mockStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) ListProfiles(ctx context.Context, organizationID string) ([]models.Profile, error) {
	args := m.Called(ctx, organizationID)
	rows, _ := args.Get(0).([]models.Profile)
	return rows, args.Error(1)
}

type mockPhotos struct{ mock.Mock }

func (m *mockPhotos) Delete(ctx context.Context, caller models.Caller, objectPath string) error {
	return m.Called(ctx, caller, objectPath).Error(0)
}

func (m *mockPhotos) Upload(ctx context.Context, caller models.Caller, objectPath, contentType string, body io.Reader) (string, error) {
	args := m.Called(ctx, caller, objectPath, contentType, body)
	return args.String(0), args.Error(1)
}
