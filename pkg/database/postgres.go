package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/models"
)

// PostgresDatabase PostgreSQL数据库实现
//
// It connects to the same database the REST API fronts. Every statement runs in a
// transaction that installs the caller's JWT claims and the matching role, so the
// row-level policies and auth.uid() behave exactly as they do behind PostgREST.
type PostgresDatabase struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string, log logrus.FieldLogger) (*PostgresDatabase, error) {
	dsn = strings.TrimSpace(dsn)
	// 尝试多种连接策略（serverless环境下IPv6/SSL问题）
	strategies := []string{
		dsn,
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sqlx.Open("postgres", strategy)
		if err != nil {
			log.WithError(err).Debugf("Connection strategy %d failed to open", i+1)
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Debugf("Connection strategy %d failed to ping", i+1)
			db.Close()
			lastErr = err
			continue
		}

		log.Infof("PostgreSQL connection established with strategy %d", i+1)
		return &PostgresDatabase{db: db, log: log}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	// key=value DSNs take space-separated parameters.
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

// DB exposes the underlying handle for migrations.
func (p *PostgresDatabase) DB() *sqlx.DB {
	return p.db
}

// Store opens a handle scoped to caller.
func (p *PostgresDatabase) Store(caller models.Caller) Store {
	return &pgStore{db: p.db, caller: caller}
}

// HealthCheck 健康检查
func (p *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (p *PostgresDatabase) Close() error {
	return p.db.Close()
}

type pgStore struct {
	db     *sqlx.DB
	caller models.Caller
}

// claims mirrors the subset of access-token claims the policies read.
func (s *pgStore) claims() (role string, claimsJSON string, err error) {
	role = "anon"
	c := map[string]interface{}{"role": role}
	if !s.caller.Anonymous() {
		role = "authenticated"
		c = map[string]interface{}{
			"sub":   s.caller.UserID,
			"email": s.caller.Email,
			"role":  role,
		}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", "", err
	}
	return role, string(b), nil
}

// withTx runs fn inside a transaction impersonating the caller.
func (s *pgStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	role, claimsJSON, err := s.claims()
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, claimsJSON); err != nil {
		return fmt.Errorf("failed to set claims: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claim.sub', $1, true)`, s.caller.UserID); err != nil {
		return fmt.Errorf("failed to set claims: %w", err)
	}
	// role is one of two fixed identifiers.
	if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+pq.QuoteIdentifier(role)); err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// callJSON calls a procedure returning json and decodes its result.
func (s *pgStore) callJSON(ctx context.Context, out interface{}, query string, args ...interface{}) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var raw []byte
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&raw); err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	})
}

// ================= procedures =================

func (s *pgStore) HandleNewUserSignup(ctx context.Context, userID, organizationName, fullName string) (*RPCResult, error) {
	var result RPCResult
	err := s.callJSON(ctx, &result, `SELECT public.handle_new_user_signup($1::uuid, $2, $3)`,
		userID, organizationName, fullName)
	if err != nil {
		return nil, fmt.Errorf("rpc handle_new_user_signup: %w", err)
	}
	return &result, nil
}

func (s *pgStore) AddBeneficiary(ctx context.Context, in models.NewBeneficiary) (*RPCResult, error) {
	var result RPCResult
	err := s.callJSON(ctx, &result, `SELECT public.add_beneficiary($1, $2, $3::date, $4)`,
		in.Name, in.ProgramType, in.EnrolledDate, string(in.Status))
	if err != nil {
		return nil, fmt.Errorf("rpc add_beneficiary: %w", err)
	}
	return &result, nil
}

func (s *pgStore) CurrentUserOrgID(ctx context.Context) (string, error) {
	var orgID sql.NullString
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `SELECT public.get_current_user_org_id()::text`).Scan(&orgID)
	})
	if err != nil {
		return "", fmt.Errorf("rpc get_current_user_org_id: %w", err)
	}
	if !orgID.Valid || orgID.String == "" {
		return "", fmt.Errorf("current user organization: %w", ErrNotFound)
	}
	return orgID.String, nil
}

// ================= beneficiaries =================

const beneficiaryColumns = `b.id, b.organization_id, b.name, b.program_type, b.enrolled_date::text AS enrolled_date,
	b.status, b.created_at, b.updated_at, b.demographics`

type beneficiaryRow struct {
	models.Beneficiary
	DemographicsJSON []byte `db:"demographics"`
}

func (r *beneficiaryRow) model() (models.Beneficiary, error) {
	b := r.Beneficiary
	if len(r.DemographicsJSON) > 0 {
		if err := json.Unmarshal(r.DemographicsJSON, &b.Demographics); err != nil {
			return b, fmt.Errorf("failed to decode demographics: %w", err)
		}
	}
	return b, nil
}

// where accumulates positional conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(opts ListOptions) string {
	var b strings.Builder
	if opts.Limit > 0 {
		w.args = append(w.args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if opts.Offset > 0 {
		w.args = append(w.args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}

func (s *pgStore) ListBeneficiaries(ctx context.Context, opts ListOptions) ([]models.Beneficiary, error) {
	w := &where{}
	if opts.Status != "" {
		w.add("b.status = $%d", string(opts.Status))
	}
	query := `SELECT ` + beneficiaryColumns + ` FROM public.beneficiaries b` + w.String() +
		` ORDER BY b.created_at DESC` + w.page(opts)

	var rows []beneficiaryRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, query, w.args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries: %w", err)
	}

	out := make([]models.Beneficiary, 0, len(rows))
	for i := range rows {
		b, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *pgStore) GetBeneficiary(ctx context.Context, id string) (*models.Beneficiary, error) {
	var row beneficiaryRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &row, `SELECT `+beneficiaryColumns+` FROM public.beneficiaries b WHERE b.id = $1::uuid`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("beneficiary %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get beneficiary: %w", err)
	}
	b, err := row.model()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *pgStore) CountBeneficiaries(ctx context.Context, status models.BeneficiaryStatus) (int, error) {
	w := &where{}
	if status != "" {
		w.add("status = $%d", string(status))
	}
	return s.count(ctx, `SELECT count(*) FROM public.beneficiaries`+w.String(), w.args...)
}

func (s *pgStore) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &n, query, args...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// ================= story updates =================

type storyRow struct {
	models.StoryUpdate
	MetricsJSON []byte `db:"metrics"`
	// Joined parent; all columns are null when the beneficiary is not visible.
	Parent struct {
		ID               sql.NullString `db:"id"`
		OrganizationID   sql.NullString `db:"organization_id"`
		Name             sql.NullString `db:"name"`
		ProgramType      sql.NullString `db:"program_type"`
		EnrolledDate     sql.NullString `db:"enrolled_date"`
		Status           sql.NullString `db:"status"`
		DemographicsJSON []byte         `db:"demographics"`
	} `db:"beneficiary"`
}

func (r *storyRow) model() (models.StoryUpdate, error) {
	st := r.StoryUpdate
	if len(r.MetricsJSON) > 0 {
		if err := json.Unmarshal(r.MetricsJSON, &st.Metrics); err != nil {
			return st, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}
	if r.Parent.ID.Valid {
		b := &models.Beneficiary{
			ID:             r.Parent.ID.String,
			OrganizationID: r.Parent.OrganizationID.String,
			Name:           r.Parent.Name.String,
			ProgramType:    r.Parent.ProgramType.String,
			EnrolledDate:   r.Parent.EnrolledDate.String,
			Status:         models.BeneficiaryStatus(r.Parent.Status.String),
		}
		if len(r.Parent.DemographicsJSON) > 0 {
			_ = json.Unmarshal(r.Parent.DemographicsJSON, &b.Demographics)
		}
		st.Beneficiary = b
	}
	return st, nil
}

func (s *pgStore) CreateStoryUpdate(ctx context.Context, story *models.StoryUpdate) error {
	metrics := story.Metrics
	if metrics == nil {
		metrics = models.Metrics{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `
			INSERT INTO public.story_updates (beneficiary_id, date, photo_url, notes, metrics, created_by)
			VALUES ($1::uuid, $2::date, $3, $4, $5::jsonb, $6::uuid)
			RETURNING id, created_at, updated_at`,
			story.BeneficiaryID, story.Date, story.PhotoURL, story.Notes, metricsJSON, story.CreatedBy,
		).Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create story update: %w", err)
	}
	return nil
}

func (s *pgStore) ListStoryUpdates(ctx context.Context, opts ListOptions) ([]models.StoryUpdate, error) {
	w := &where{}
	if opts.BeneficiaryID != "" {
		w.add("s.beneficiary_id = $%d::uuid", opts.BeneficiaryID)
	}
	if opts.Since != "" {
		w.add("s.date >= $%d::date", opts.Since)
	}
	if opts.Until != "" {
		w.add("s.date <= $%d::date", opts.Until)
	}
	query := `
		SELECT s.id, s.beneficiary_id, s.date::text AS date, s.photo_url, s.notes, s.metrics,
		       s.created_by, s.created_at, s.updated_at,
		       b.id AS "beneficiary.id", b.organization_id AS "beneficiary.organization_id",
		       b.name AS "beneficiary.name", b.program_type AS "beneficiary.program_type",
		       b.enrolled_date::text AS "beneficiary.enrolled_date", b.status AS "beneficiary.status",
		       b.demographics AS "beneficiary.demographics"
		FROM public.story_updates s
		LEFT JOIN public.beneficiaries b ON b.id = s.beneficiary_id` + w.String() +
		` ORDER BY s.date DESC, s.created_at DESC` + w.page(opts)

	var rows []storyRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, query, w.args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list story updates: %w", err)
	}

	out := make([]models.StoryUpdate, 0, len(rows))
	for i := range rows {
		st, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *pgStore) CountStoryUpdates(ctx context.Context, since string) (int, error) {
	w := &where{}
	if since != "" {
		w.add("date >= $%d::date", since)
	}
	return s.count(ctx, `SELECT count(*) FROM public.story_updates`+w.String(), w.args...)
}

// ================= reports =================

const reportColumns = `id, organization_id, title, report_type, content, generated_at, generated_by, created_at, updated_at`

type reportRow struct {
	models.Report
	ContentJSON []byte `db:"content"`
}

func (s *pgStore) CreateReport(ctx context.Context, r *models.Report) error {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("failed to encode report content: %w", err)
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `
			INSERT INTO public.reports (organization_id, title, report_type, content, generated_at, generated_by)
			VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6::uuid)
			RETURNING id, created_at, updated_at`,
			r.OrganizationID, r.Title, string(r.ReportType), content, r.GeneratedAt, r.GeneratedBy,
		).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (s *pgStore) ListReports(ctx context.Context, opts ListOptions) ([]models.Report, error) {
	w := &where{}
	query := `SELECT ` + reportColumns + ` FROM public.reports ORDER BY generated_at DESC` + w.page(opts)

	var rows []reportRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, query, w.args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	out := make([]models.Report, 0, len(rows))
	for _, row := range rows {
		r := row.Report
		if len(row.ContentJSON) > 0 {
			if err := json.Unmarshal(row.ContentJSON, &r.Content); err != nil {
				return nil, fmt.Errorf("failed to decode report content: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *pgStore) CountReports(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM public.reports`)
}

// ================= organizations & profiles =================

type organizationRow struct {
	models.Organization
	FocusAreasArray pq.StringArray `db:"focus_areas"`
}

func (s *pgStore) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var row organizationRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &row, `
			SELECT id, name, mission, focus_areas, created_at, updated_at
			FROM public.organizations WHERE id = $1::uuid`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org := row.Organization
	org.FocusAreas = []string(row.FocusAreasArray)
	return &org, nil
}

func (s *pgStore) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	focusAreas := pq.StringArray(org.FocusAreas)
	if focusAreas == nil {
		focusAreas = pq.StringArray{}
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `
			UPDATE public.organizations
			SET name = $2, mission = $3, focus_areas = $4, updated_at = NOW()
			WHERE id = $1::uuid
			RETURNING created_at, updated_at`,
			org.ID, org.Name, org.Mission, focusAreas,
		).Scan(&org.CreatedAt, &org.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("organization %s: %w", org.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

const profileColumns = `id, organization_id, role, full_name, avatar_url, created_at, updated_at`

func (s *pgStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM public.users WHERE id = $1::uuid`, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *pgStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, p, `
			UPDATE public.users
			SET full_name = $2, avatar_url = $3, updated_at = NOW()
			WHERE id = $1::uuid
			RETURNING `+profileColumns,
			p.ID, p.FullName, p.AvatarURL)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (s *pgStore) ListProfiles(ctx context.Context, organizationID string) ([]models.Profile, error) {
	profiles := []models.Profile{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &profiles,
			`SELECT `+profileColumns+` FROM public.users WHERE organization_id = $1::uuid ORDER BY created_at ASC`,
			organizationID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}
