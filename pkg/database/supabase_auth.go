package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"impact-story-backend/pkg/models"
)

// supabaseAuth talks to GoTrue under /auth/v1.
type supabaseAuth struct {
	db *SupabaseDatabase
}

// Auth returns the identity provider client.
func (db *SupabaseDatabase) Auth() AuthClient {
	return &supabaseAuth{db: db}
}

// signUpResponse covers both shapes GoTrue returns from /signup: a session when
// e-mail confirmation is off, a bare user when it is on.
type signUpResponse struct {
	models.Session
	ID        string                 `json:"id"`
	Email     string                 `json:"email"`
	Metadata  map[string]interface{} `json:"user_metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

func (a *supabaseAuth) SignUp(ctx context.Context, params SignUpParams) (*models.AuthUser, *models.Session, error) {
	var query url.Values
	if params.EmailRedirectTo != "" {
		query = url.Values{"redirect_to": {params.EmailRedirectTo}}
	}
	body := map[string]interface{}{
		"email":    params.Email,
		"password": params.Password,
	}
	if len(params.Data) > 0 {
		body["data"] = params.Data
	}
	if params.CodeChallenge != "" {
		body["code_challenge"] = params.CodeChallenge
		body["code_challenge_method"] = "s256"
	}

	data, _, err := a.db.makeRequest(ctx, http.MethodPost, "/auth/v1/signup", query, "", body)
	if err != nil {
		return nil, nil, err
	}

	var resp signUpResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse signup response: %w", err)
	}

	if resp.AccessToken != "" {
		session := resp.Session
		session.ExpiresAt = expiresAt(session)
		return session.User, &session, nil
	}
	if resp.ID == "" {
		// No identity in the response.
		return nil, nil, nil
	}
	return &models.AuthUser{
		ID:           resp.ID,
		Email:        resp.Email,
		UserMetadata: resp.Metadata,
		CreatedAt:    resp.CreatedAt,
	}, nil, nil
}

func (a *supabaseAuth) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return a.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (a *supabaseAuth) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	return a.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

func (a *supabaseAuth) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*models.Session, error) {
	return a.token(ctx, "pkce", map[string]string{
		"auth_code":     authCode,
		"code_verifier": codeVerifier,
	})
}

// token calls the token endpoint with the given grant.
func (a *supabaseAuth) token(ctx context.Context, grant string, body map[string]string) (*models.Session, error) {
	query := url.Values{"grant_type": {grant}}
	data, _, err := a.db.makeRequest(ctx, http.MethodPost, "/auth/v1/token", query, "", body)
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("token response for grant %s carried no access token", grant)
	}
	session.ExpiresAt = expiresAt(session)
	return &session, nil
}

func (a *supabaseAuth) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	_, _, err := a.db.makeRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil)
	return err
}

func (a *supabaseAuth) GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	data, _, err := a.db.makeRequest(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}
	var user models.AuthUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

func (a *supabaseAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	body := map[string]string{"email": email}
	if codeChallenge != "" {
		body["code_challenge"] = codeChallenge
		body["code_challenge_method"] = "s256"
	}
	_, _, err := a.db.makeRequest(ctx, http.MethodPost, "/auth/v1/recover", query, "", body)
	return err
}

func (a *supabaseAuth) UpdatePassword(ctx context.Context, accessToken, password string) error {
	_, _, err := a.db.makeRequest(ctx, http.MethodPut, "/auth/v1/user", nil, accessToken,
		map[string]string{"password": password})
	return err
}

func expiresAt(s models.Session) int64 {
	if s.ExpiresAt != 0 || s.ExpiresIn == 0 {
		return s.ExpiresAt
	}
	return time.Now().Unix() + s.ExpiresIn
}
