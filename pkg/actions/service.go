// Package actions implements the form actions: validation first, then at most one
// logical backend operation, with every failure collapsed into a user-facing string.
package actions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
	"impact-story-backend/pkg/metrics"
	"impact-story-backend/pkg/models"
)

// User-facing messages shared by several actions.
const (
	MsgNotConfigured    = "Supabase is not configured"
	MsgNotAuthenticated = "Not authenticated"
)

// Failure classifies a failed action so the transport can pick a status code.
type Failure int

const (
	FailureNone Failure = iota
	FailureInvalid
	FailureUnconfigured
	FailureUnauthenticated
	FailureForbidden
	FailureBackend
)

func (f Failure) outcome() string {
	switch f {
	case FailureNone:
		return metrics.OutcomeSuccess
	case FailureInvalid, FailureForbidden:
		return metrics.OutcomeInvalid
	case FailureUnconfigured:
		return metrics.OutcomeUnconfigured
	case FailureUnauthenticated:
		return metrics.OutcomeUnauthenticated
	default:
		return metrics.OutcomeFailed
	}
}

// Result is what an action hands back to the view. Either Error is set, or the
// action succeeded and the remaining fields describe what to do next.
type Result struct {
	Error   string
	Failure Failure

	Redirect   string
	Revalidate []string
	Message    string
	Data       interface{}

	// Session is set when the action signed the caller in.
	Session *models.Session
	// ClearSession is set when the action signed the caller out.
	ClearSession bool
	// CodeVerifier must be kept by the client until the auth callback.
	CodeVerifier string
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

func fail(kind Failure, msg string) Result {
	return Result{Error: msg, Failure: kind}
}

func invalid(msg string) Result {
	return fail(FailureInvalid, msg)
}

func notConfigured() Result {
	return fail(FailureUnconfigured, MsgNotConfigured)
}

func notAuthenticated() Result {
	return fail(FailureUnauthenticated, MsgNotAuthenticated)
}

// Service runs form actions against the backend.
type Service struct {
	backend database.Backend
	log     logrus.FieldLogger
	metrics *metrics.Collector
	siteURL string

	now   func() time.Time
	newID func() string
}

// NewService builds a Service. m may be nil.
func NewService(backend database.Backend, cfg *config.Config, log logrus.FieldLogger, m *metrics.Collector) *Service {
	return &Service{
		backend: backend,
		log:     log,
		metrics: m,
		siteURL: strings.TrimRight(cfg.SiteURL, "/"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Configured reports whether the backend is configured.
func (s *Service) Configured() bool {
	_, ok := s.backend.Client()
	return ok
}

// begin returns the request logger for an action and a func recording its outcome.
func (s *Service) begin(ctx context.Context, action string) (logrus.FieldLogger, func(*Result)) {
	log := logging.WithReqIDFromCtx(ctx, s.log).WithField("action", action)
	start := time.Now()
	return log, func(res *Result) {
		if s.metrics != nil {
			s.metrics.ObserveAction(action, res.Failure.outcome(), time.Since(start))
		}
		if !res.OK() && res.Failure != FailureBackend {
			log.WithField("reason", res.Error).Debug("Action rejected")
		}
	}
}

// origin returns the base URL for links sent by e-mail.
func (s *Service) origin(requestOrigin string) string {
	if requestOrigin = strings.TrimRight(strings.TrimSpace(requestOrigin), "/"); requestOrigin != "" {
		return requestOrigin
	}
	if s.siteURL != "" {
		return s.siteURL
	}
	return "http://localhost:3000"
}

// providerMessage returns the identity provider's message for err, or fallback
// when err did not come from the provider.
func providerMessage(err error, fallback string) string {
	if msg, ok := database.ProviderMessage(err); ok {
		return msg
	}
	return fallback
}
