package actions

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

type SignUpInput struct {
	Email            string
	Password         string
	ConfirmPassword  string
	FullName         string
	OrganizationName string
	// Origin of the submitting page, used for the confirmation link.
	Origin string
}

type SignInInput struct {
	Email    string
	Password string
}

type ResetPasswordInput struct {
	Email  string
	Origin string
}

type CallbackInput struct {
	Code         string
	Next         string
	CodeVerifier string
}

type UpdatePasswordInput struct {
	Password        string
	ConfirmPassword string
}

// SignUp registers an identity and provisions its organization and admin profile.
//
// Provisioning is keyed on the identity, so submitting the form again for an
// identity whose provisioning failed completes it instead of failing with
// "already registered".
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (res Result) {
	log, done := s.begin(ctx, "sign_up")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}

	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	orgName := strings.TrimSpace(in.OrganizationName)
	if email == "" || in.Password == "" || in.ConfirmPassword == "" || fullName == "" || orgName == "" {
		return invalid("All fields are required")
	}
	if in.Password != in.ConfirmPassword {
		return invalid("Passwords do not match")
	}
	if len(in.Password) < models.MinPasswordLength {
		return invalid("Password must be at least 6 characters")
	}

	verifier, challenge, err := utils.NewPKCEVerifier()
	if err != nil {
		log.WithError(err).Error("Failed to generate code verifier")
		return fail(FailureBackend, "Failed to create user")
	}

	user, session, err := client.Auth().SignUp(ctx, database.SignUpParams{
		Email:           email,
		Password:        in.Password,
		EmailRedirectTo: s.origin(in.Origin) + models.RouteAuthCallback,
		CodeChallenge:   challenge,
		Data: map[string]interface{}{
			"full_name":         fullName,
			"organization_name": orgName,
		},
	})
	if err != nil && alreadyRegistered(err) {
		user, session, err = s.resumeSignUp(ctx, client, log, email, in.Password, err)
	}
	if err != nil {
		log.WithError(err).Warn("Identity provider rejected signup")
		return fail(FailureBackend, providerMessage(err, "Failed to create user"))
	}
	if user == nil || user.ID == "" {
		return fail(FailureBackend, "Failed to create user")
	}

	caller := models.Caller{UserID: user.ID, Email: user.Email}
	if session != nil {
		caller.AccessToken = session.AccessToken
	}

	result, err := client.Store(caller).HandleNewUserSignup(ctx, user.ID, orgName, fullName)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Error during signup")
		return fail(FailureBackend, "Failed to complete signup")
	}
	if result == nil || !result.Success {
		msg := "Failed to complete signup"
		if result != nil && result.Error != "" {
			msg = result.Error
		}
		log.WithField("user_id", user.ID).WithField("rpc_error", msg).Error("Signup function returned error")
		return fail(FailureBackend, msg)
	}

	log.WithField("user_id", user.ID).WithField("organization_id", result.OrganizationID).Info("User signed up")
	res = Result{Redirect: models.RouteDashboard, Session: session}
	if session == nil {
		// Confirmation pending; the e-mailed link is exchanged at the callback.
		res.CodeVerifier = verifier
	}
	return res
}

// resumeSignUp signs in an already-registered identity so its provisioning can be
// retried. If the credentials do not work the original error is returned.
func (s *Service) resumeSignUp(ctx context.Context, client database.Client, log logrus.FieldLogger,
	email, password string, signUpErr error) (*models.AuthUser, *models.Session, error) {
	session, err := client.Auth().SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, signUpErr
	}
	user := session.User
	if user == nil {
		if user, err = client.Auth().GetUser(ctx, session.AccessToken); err != nil {
			return nil, nil, signUpErr
		}
	}
	log.WithField("user_id", user.ID).Info("Resuming signup for registered identity")
	return user, session, nil
}

func alreadyRegistered(err error) bool {
	var apiErr *database.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "user_already_exists" ||
		strings.Contains(strings.ToLower(apiErr.Message), "already registered")
}

// SignIn verifies credentials with the identity provider.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (res Result) {
	log, done := s.begin(ctx, "sign_in")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return invalid("Email and password are required")
	}

	session, err := client.Auth().SignIn(ctx, email, in.Password)
	if err != nil {
		log.WithError(err).Debug("Sign-in failed")
		return fail(FailureBackend, providerMessage(err, "Failed to sign in"))
	}

	return Result{Redirect: models.RouteDashboard, Session: session}
}

// SignOut ends the caller's session. Provider errors are logged and the local
// session is cleared regardless.
func (s *Service) SignOut(ctx context.Context, caller models.Caller) (res Result) {
	log, done := s.begin(ctx, "sign_out")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}

	if err := client.Auth().SignOut(ctx, caller.AccessToken); err != nil {
		log.WithError(err).Warn("Sign-out failed at identity provider")
	}
	return Result{Redirect: models.RouteHome, ClearSession: true}
}

// RequestPasswordReset e-mails a recovery link that lands on the settings page.
func (s *Service) RequestPasswordReset(ctx context.Context, in ResetPasswordInput) (res Result) {
	log, done := s.begin(ctx, "reset_password")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return invalid("Email is required")
	}

	verifier, challenge, err := utils.NewPKCEVerifier()
	if err != nil {
		log.WithError(err).Error("Failed to generate code verifier")
		return fail(FailureBackend, "Failed to send reset email")
	}

	redirectTo := s.origin(in.Origin) + models.RouteAuthCallback + "?next=" + models.RouteSettings
	if err := client.Auth().ResetPasswordForEmail(ctx, email, redirectTo, challenge); err != nil {
		log.WithError(err).Warn("Password reset request failed")
		return fail(FailureBackend, providerMessage(err, "Failed to send reset email"))
	}

	return Result{
		Message:      "Check your email for a password reset link",
		CodeVerifier: verifier,
	}
}

// Callback exchanges the code from an e-mailed link for a session.
func (s *Service) Callback(ctx context.Context, in CallbackInput) (res Result) {
	log, done := s.begin(ctx, "auth_callback")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}

	if in.Code == "" {
		return invalid("Missing authorization code")
	}
	if in.CodeVerifier == "" {
		return invalid("This link is invalid or has expired")
	}

	session, err := client.Auth().ExchangeCode(ctx, in.Code, in.CodeVerifier)
	if err != nil {
		log.WithError(err).Warn("Code exchange failed")
		return fail(FailureBackend, providerMessage(err, "This link is invalid or has expired"))
	}

	return Result{Redirect: SafeNext(in.Next), Session: session}
}

// SafeNext returns next when it is a path on this site, otherwise the dashboard.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") {
		return models.RouteDashboard
	}
	// Browsers drop tabs and newlines and treat a backslash as a slash, so
	// "/\t/host" and "/\\host" both leave the site.
	if strings.ContainsFunc(next, func(r rune) bool { return r < 0x20 || r == 0x7f || r == '\\' }) {
		return models.RouteDashboard
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || strings.HasPrefix(u.Path, "//") {
		return models.RouteDashboard
	}
	return next
}

// UpdatePassword changes the caller's password.
func (s *Service) UpdatePassword(ctx context.Context, caller models.Caller, in UpdatePasswordInput) (res Result) {
	log, done := s.begin(ctx, "update_password")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	if in.Password == "" || in.ConfirmPassword == "" {
		return invalid("Password and confirmation are required")
	}
	if in.Password != in.ConfirmPassword {
		return invalid("Passwords do not match")
	}
	if len(in.Password) < models.MinPasswordLength {
		return invalid("Password must be at least 6 characters")
	}

	if err := client.Auth().UpdatePassword(ctx, caller.AccessToken, in.Password); err != nil {
		log.WithError(err).Warn("Password update failed")
		return fail(FailureBackend, providerMessage(err, "Failed to update password"))
	}

	return Result{Redirect: models.RouteSettings, Message: "Password updated"}
}
