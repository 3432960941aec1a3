package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/models"
)

// ErrNotFound is returned when a single-row lookup matches nothing visible to the caller.
var ErrNotFound = errors.New("not found")

// APIError is an error body returned by the identity provider, the REST data plane or storage.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API request failed with status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Message)
}

// ProviderMessage extracts the message of an APIError anywhere in err's chain.
func ProviderMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// RPCResult is the {success, error?} envelope returned by the provisioning procedures.
type RPCResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ID             string `json:"id,omitempty"`
}

// ListOptions narrows list queries. Zero values mean "no filter".
type ListOptions struct {
	Limit         int
	Offset        int
	Status        models.BeneficiaryStatus
	BeneficiaryID string
	Since         string // inclusive, YYYY-MM-DD
	Until         string // inclusive, YYYY-MM-DD
}

// SignUpParams 注册参数
type SignUpParams struct {
	Email           string
	Password        string
	EmailRedirectTo string
	// CodeChallenge makes the confirmation link carry a code for the callback.
	CodeChallenge string
	Data          map[string]interface{}
}

// AuthClient is the identity provider.
type AuthClient interface {
	// SignUp returns the new identity, plus a session when e-mail confirmation is disabled.
	SignUp(ctx context.Context, params SignUpParams) (*models.AuthUser, *models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error)
	RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*models.Session, error)
	UpdatePassword(ctx context.Context, accessToken, password string) error
}

// Store is the data plane as seen by one caller. Row-level policies on the backend
// decide which rows are visible; nothing here filters by organization.
type Store interface {
	// Remote procedures
	HandleNewUserSignup(ctx context.Context, userID, organizationName, fullName string) (*RPCResult, error)
	AddBeneficiary(ctx context.Context, in models.NewBeneficiary) (*RPCResult, error)
	CurrentUserOrgID(ctx context.Context) (string, error)

	// Beneficiaries
	ListBeneficiaries(ctx context.Context, opts ListOptions) ([]models.Beneficiary, error)
	GetBeneficiary(ctx context.Context, id string) (*models.Beneficiary, error)
	CountBeneficiaries(ctx context.Context, status models.BeneficiaryStatus) (int, error)

	// Story updates
	CreateStoryUpdate(ctx context.Context, s *models.StoryUpdate) error
	ListStoryUpdates(ctx context.Context, opts ListOptions) ([]models.StoryUpdate, error)
	CountStoryUpdates(ctx context.Context, since string) (int, error)

	// Reports
	CreateReport(ctx context.Context, r *models.Report) error
	ListReports(ctx context.Context, opts ListOptions) ([]models.Report, error)
	CountReports(ctx context.Context) (int, error)

	// Organizations & profiles
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
	ListProfiles(ctx context.Context, organizationID string) ([]models.Profile, error)
}

// PhotoStore uploads story photos and returns their public URL.
type PhotoStore interface {
	Upload(ctx context.Context, caller models.Caller, objectPath, contentType string, body io.Reader) (string, error)
	// Delete removes an uploaded object that ended up unreferenced.
	Delete(ctx context.Context, caller models.Caller, objectPath string) error
}

// DataPlane opens per-caller stores over one shared connection.
type DataPlane interface {
	Store(caller models.Caller) Store
	HealthCheck(ctx context.Context) error
	Close() error
}

// Client is a configured handle to the backend.
type Client interface {
	Auth() AuthClient
	// Store opens a credentialed handle for one request.
	Store(caller models.Caller) Store
	Photos() PhotoStore
	HealthCheck(ctx context.Context) error
	Close() error
}

// Backend is an optional Client. The zero value is "not configured", which is a
// different state from a configured client whose calls fail.
type Backend struct {
	client Client
	pooled *pooledBackend
}

// Configured wraps a live client.
func Configured(c Client) Backend {
	return Backend{client: c}
}

// Client returns the client and whether the backend is configured.
func (b Backend) Client() (Client, bool) {
	if b.pooled != nil {
		return b.pooled.client(), true
	}
	return b.client, b.client != nil
}

// pooledBackend resolves its client through a ClientPool on every call, so the
// pool sees the client as in use and can replace it after a failed health check.
type pooledBackend struct {
	pool *ClientPool
	cfg  DatabaseConfig
	log  logrus.FieldLogger

	mu   sync.Mutex
	last Client
}

func newPooledBackend(pool *ClientPool, cfg DatabaseConfig, log logrus.FieldLogger) (Backend, error) {
	c, err := pool.Get(cfg, log)
	if err != nil {
		return Backend{}, err
	}
	return Backend{pooled: &pooledBackend{pool: pool, cfg: cfg, log: log, last: c}}, nil
}

func (b *pooledBackend) client() Client {
	c, err := b.pool.Get(b.cfg, b.log)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		// Calls on the previous client fail and surface as backend errors.
		b.log.WithError(err).Error("Failed to recreate backend client")
		return b.last
	}
	b.last = c
	return c
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SupabaseURL   string
	SupabaseKey   string
	StorageBucket string
	PostgresDSN   string
}

func DatabaseConfigFrom(cfg *config.Config) DatabaseConfig {
	return DatabaseConfig{
		SupabaseURL:   cfg.SupabaseURL,
		SupabaseKey:   cfg.SupabaseAnonKey,
		StorageBucket: cfg.StorageBucket,
		PostgresDSN:   cfg.PostgresDSN,
	}
}

// NewBackend 根据配置选择后端实现
//
// Without Supabase credentials the returned Backend is unconfigured and err is nil.
// The identity provider and photo storage are always Supabase; the data plane is
// direct Postgres when a DSN is configured, otherwise the Supabase REST API.
func NewBackend(cfg *config.Config, log logrus.FieldLogger) (Backend, error) {
	if !cfg.BackendConfigured() {
		log.Warn("Supabase is not configured; actions will report it and make no network calls")
		return Backend{}, nil
	}
	return newPooledBackend(globalPool, DatabaseConfigFrom(cfg), log)
}

// newClient builds a client without consulting the pool.
func newClient(dbCfg DatabaseConfig, log logrus.FieldLogger) (Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	supa := NewSupabaseDatabase(dbCfg.SupabaseURL, dbCfg.SupabaseKey, dbCfg.StorageBucket, httpClient)

	var data DataPlane = supa
	if dbCfg.PostgresDSN != "" {
		pg, err := NewPostgresDatabase(dbCfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		log.Info("Using direct PostgreSQL data plane")
		data = pg
	} else {
		log.Info("Using Supabase REST data plane")
	}

	return &compositeClient{auth: supa.Auth(), data: data, photos: supa.Photos()}, nil
}

// compositeClient joins the identity provider, a data plane and photo storage.
type compositeClient struct {
	auth   AuthClient
	data   DataPlane
	photos PhotoStore
}

func (c *compositeClient) Auth() AuthClient                      { return c.auth }
func (c *compositeClient) Store(caller models.Caller) Store      { return c.data.Store(caller) }
func (c *compositeClient) Photos() PhotoStore                    { return c.photos }
func (c *compositeClient) HealthCheck(ctx context.Context) error { return c.data.HealthCheck(ctx) }
func (c *compositeClient) Close() error                          { return c.data.Close() }
