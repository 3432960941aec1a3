package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"impact-story-backend/pkg/models"
)

// SupabaseDatabase Supabase REST实现（PostgREST + GoTrue + Storage）
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseDatabase 创建Supabase客户端
func NewSupabaseDatabase(baseURL, key, bucket string, httpClient *http.Client) *SupabaseDatabase {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseDatabase{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     key,
		bucket:     bucket,
		httpClient: httpClient,
	}
}

// Store opens a handle that forwards the caller's access token, so row-level
// policies see the caller. An anonymous caller uses the anon key.
func (db *SupabaseDatabase) Store(caller models.Caller) Store {
	return &supabaseStore{db: db, token: caller.AccessToken}
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck(ctx context.Context) error {
	_, _, err := db.makeRequest(ctx, http.MethodGet, "/auth/v1/health", nil, "", nil)
	return err
}

// Close 关闭连接
func (db *SupabaseDatabase) Close() error {
	// HTTP客户端无需显式关闭
	return nil
}

// makeRequest 发送JSON请求到Supabase
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, query url.Values, token string, body interface{}) ([]byte, http.Header, error) {
	return db.makeRequestWithHeaders(ctx, method, endpoint, query, token, body, nil)
}

// makeRequestWithHeaders 发送JSON请求到Supabase（支持自定义头）
func (db *SupabaseDatabase) makeRequestWithHeaders(ctx context.Context, method, endpoint string, query url.Values, token string, body interface{}, customHeaders map[string]string) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	u := db.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range customHeaders {
		req.Header.Set(key, value)
	}
	return db.send(req, token)
}

// send sets credentials, executes req and decodes error bodies into *APIError.
func (db *SupabaseDatabase) send(req *http.Request, token string) ([]byte, http.Header, error) {
	req.Header.Set("apikey", db.apiKey)
	if token == "" {
		token = db.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, resp.Header, decodeAPIError(resp.StatusCode, respBody)
	}
	return respBody, resp.Header, nil
}

// decodeAPIError understands the error shapes of GoTrue, PostgREST and Storage.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	for _, key := range []string{"msg", "error_description", "message", "error"} {
		if s, ok := raw[key].(string); ok && s != "" {
			apiErr.Message = s
			break
		}
	}
	for _, key := range []string{"error_code", "code", "statusCode"} {
		switch v := raw[key].(type) {
		case string:
			apiErr.Code = v
		case float64:
			apiErr.Code = strconv.Itoa(int(v))
		default:
			continue
		}
		break
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// parseContentRangeTotal reads the total from a PostgREST Content-Range header ("0-9/42", "*/42").
func parseContentRangeTotal(h http.Header) (int, error) {
	cr := h.Get("Content-Range")
	i := strings.LastIndex(cr, "/")
	if i < 0 || i == len(cr)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", cr)
	}
	total := cr[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not computed in Content-Range %q", cr)
	}
	return strconv.Atoi(total)
}

// ================= per-caller store =================

type supabaseStore struct {
	db    *SupabaseDatabase
	token string
}

const restPrefix = "/rest/v1"

func (s *supabaseStore) rpc(ctx context.Context, name string, args interface{}, out interface{}) error {
	data, _, err := s.db.makeRequest(ctx, http.MethodPost, restPrefix+"/rpc/"+name, nil, s.token, args)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rpc %s: failed to parse response: %w", name, err)
	}
	return nil
}

func (s *supabaseStore) selectRows(ctx context.Context, table string, query url.Values, out interface{}) error {
	data, _, err := s.db.makeRequest(ctx, http.MethodGet, restPrefix+"/"+table, query, s.token, nil)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("select %s: failed to parse response: %w", table, err)
	}
	return nil
}

// insertRow inserts payload and decodes the single returned row into out.
func (s *supabaseStore) insertRow(ctx context.Context, table string, payload interface{}, out interface{}) error {
	data, _, err := s.db.makeRequestWithHeaders(ctx, http.MethodPost, restPrefix+"/"+table, nil, s.token, payload,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return decodeFirstRow(table, data, out)
}

func (s *supabaseStore) updateRow(ctx context.Context, table, id string, patch map[string]interface{}, out interface{}) error {
	query := url.Values{"id": {"eq." + id}}
	data, _, err := s.db.makeRequestWithHeaders(ctx, http.MethodPatch, restPrefix+"/"+table, query, s.token, patch,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return decodeFirstRow(table, data, out)
}

func (s *supabaseStore) count(ctx context.Context, table string, query url.Values) (int, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("select", "id")
	_, header, err := s.db.makeRequestWithHeaders(ctx, http.MethodHead, restPrefix+"/"+table, query, s.token, nil,
		map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	n, err := parseContentRangeTotal(header)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// decodeFirstRow decodes the first element of a representation array. An empty
// array means the row was filtered out by policy.
func decodeFirstRow(table string, data []byte, out interface{}) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", table, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", table, ErrNotFound)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("%s: failed to parse row: %w", table, err)
	}
	return nil
}

func paging(query url.Values, opts ListOptions) {
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
}

// ================= procedures =================

func (s *supabaseStore) HandleNewUserSignup(ctx context.Context, userID, organizationName, fullName string) (*RPCResult, error) {
	var result RPCResult
	err := s.rpc(ctx, "handle_new_user_signup", map[string]interface{}{
		"p_user_id":           userID,
		"p_organization_name": organizationName,
		"p_full_name":         fullName,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *supabaseStore) AddBeneficiary(ctx context.Context, in models.NewBeneficiary) (*RPCResult, error) {
	var result RPCResult
	if err := s.rpc(ctx, "add_beneficiary", in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *supabaseStore) CurrentUserOrgID(ctx context.Context) (string, error) {
	var orgID *string
	if err := s.rpc(ctx, "get_current_user_org_id", map[string]interface{}{}, &orgID); err != nil {
		return "", err
	}
	if orgID == nil || *orgID == "" {
		return "", fmt.Errorf("current user organization: %w", ErrNotFound)
	}
	return *orgID, nil
}

// ================= beneficiaries =================

func (s *supabaseStore) ListBeneficiaries(ctx context.Context, opts ListOptions) ([]models.Beneficiary, error) {
	query := url.Values{
		"select": {"*"},
		"order":  {"created_at.desc"},
	}
	if opts.Status != "" {
		query.Set("status", "eq."+string(opts.Status))
	}
	paging(query, opts)

	rows := []models.Beneficiary{}
	if err := s.selectRows(ctx, "beneficiaries", query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *supabaseStore) GetBeneficiary(ctx context.Context, id string) (*models.Beneficiary, error) {
	query := url.Values{"select": {"*"}, "id": {"eq." + id}, "limit": {"1"}}
	var rows []models.Beneficiary
	if err := s.selectRows(ctx, "beneficiaries", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("beneficiary %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

func (s *supabaseStore) CountBeneficiaries(ctx context.Context, status models.BeneficiaryStatus) (int, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", "eq."+string(status))
	}
	return s.count(ctx, "beneficiaries", query)
}

// ================= story updates =================

func (s *supabaseStore) CreateStoryUpdate(ctx context.Context, story *models.StoryUpdate) error {
	payload := map[string]interface{}{
		"beneficiary_id": story.BeneficiaryID,
		"date":           story.Date,
		"photo_url":      story.PhotoURL,
		"notes":          story.Notes,
		"metrics":        story.Metrics,
		"created_by":     story.CreatedBy,
	}
	return s.insertRow(ctx, "story_updates", payload, story)
}

func (s *supabaseStore) ListStoryUpdates(ctx context.Context, opts ListOptions) ([]models.StoryUpdate, error) {
	query := url.Values{
		"select": {"*,beneficiary:beneficiaries(*)"},
		"order":  {"date.desc,created_at.desc"},
	}
	if opts.BeneficiaryID != "" {
		query.Set("beneficiary_id", "eq."+opts.BeneficiaryID)
	}
	var dateFilters []string
	if opts.Since != "" {
		dateFilters = append(dateFilters, "date.gte."+opts.Since)
	}
	if opts.Until != "" {
		dateFilters = append(dateFilters, "date.lte."+opts.Until)
	}
	if len(dateFilters) > 0 {
		query.Set("and", "("+strings.Join(dateFilters, ",")+")")
	}
	paging(query, opts)

	rows := []models.StoryUpdate{}
	if err := s.selectRows(ctx, "story_updates", query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *supabaseStore) CountStoryUpdates(ctx context.Context, since string) (int, error) {
	query := url.Values{}
	if since != "" {
		query.Set("date", "gte."+since)
	}
	return s.count(ctx, "story_updates", query)
}

// ================= reports =================

func (s *supabaseStore) CreateReport(ctx context.Context, r *models.Report) error {
	payload := map[string]interface{}{
		"organization_id": r.OrganizationID,
		"title":           r.Title,
		"report_type":     r.ReportType,
		"content":         r.Content,
		"generated_by":    r.GeneratedBy,
	}
	if !r.GeneratedAt.IsZero() {
		payload["generated_at"] = r.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return s.insertRow(ctx, "reports", payload, r)
}

func (s *supabaseStore) ListReports(ctx context.Context, opts ListOptions) ([]models.Report, error) {
	query := url.Values{"select": {"*"}, "order": {"generated_at.desc"}}
	paging(query, opts)

	rows := []models.Report{}
	if err := s.selectRows(ctx, "reports", query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *supabaseStore) CountReports(ctx context.Context) (int, error) {
	return s.count(ctx, "reports", nil)
}

// ================= organizations & profiles =================

func (s *supabaseStore) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	query := url.Values{"select": {"*"}, "id": {"eq." + id}, "limit": {"1"}}
	var rows []models.Organization
	if err := s.selectRows(ctx, "organizations", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

func (s *supabaseStore) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	focusAreas := org.FocusAreas
	if focusAreas == nil {
		focusAreas = []string{}
	}
	return s.updateRow(ctx, "organizations", org.ID, map[string]interface{}{
		"name":        org.Name,
		"mission":     org.Mission,
		"focus_areas": focusAreas,
	}, org)
}

func (s *supabaseStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := url.Values{"select": {"*"}, "id": {"eq." + userID}, "limit": {"1"}}
	var rows []models.Profile
	if err := s.selectRows(ctx, "users", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return &rows[0], nil
}

func (s *supabaseStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	return s.updateRow(ctx, "users", p.ID, map[string]interface{}{
		"full_name":  p.FullName,
		"avatar_url": p.AvatarURL,
	}, p)
}

func (s *supabaseStore) ListProfiles(ctx context.Context, organizationID string) ([]models.Profile, error) {
	query := url.Values{
		"select":          {"*"},
		"organization_id": {"eq." + organizationID},
		"order":           {"created_at.asc"},
	}
	rows := []models.Profile{}
	if err := s.selectRows(ctx, "users", query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
