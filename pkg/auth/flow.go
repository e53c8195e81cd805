package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/rollcall/pkg/cohort"
	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/observability"
	"github.com/platinummonkey/rollcall/pkg/queue"
	"github.com/platinummonkey/rollcall/pkg/sso"
)

var flowTracer = otel.Tracer("rollcall/auth")

// Store is the persistence the login flow needs
type Store interface {
	CreateRequest(ctx context.Context, req *identity.AuthenticationRequest) error
	GetRequest(ctx context.Context, csrfToken string) (*identity.AuthenticationRequest, error)
	MarkConfirmed(ctx context.Context, csrfToken string) (time.Time, error)
	PurgeRequests(ctx context.Context, cutoff time.Time) (int64, error)
	FindIdentitiesByEmail(ctx context.Context, email string) ([]*identity.Identity, error)
	ArchiveIdentity(ctx context.Context, ident *identity.Identity) (*identity.ArchivedIdentity, error)
	SaveIdentity(ctx context.Context, ident *identity.Identity) error
}

// Result describes a confirmed login
type Result struct {
	SubjectID  string
	CohortID   string
	InviteLink string
	// Displaced lists the subjects whose identities were archived
	Displaced []string
}

// Flow is the CSRF protected login flow
type Flow struct {
	store      Store
	provider   sso.Provider
	catalog    *cohort.Catalog
	roleQueue  queue.Enqueuer
	inviteLink string
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	now        func() time.Time
}

// FlowConfig holds the collaborators of a Flow
type FlowConfig struct {
	Store      Store
	Provider   sso.Provider
	Catalog    *cohort.Catalog
	RoleQueue  queue.Enqueuer
	InviteLink string
	Logger     logrus.FieldLogger
	Metrics    *observability.Metrics
}

// NewFlow creates a login flow
func NewFlow(cfg FlowConfig) *Flow {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Flow{
		store:      cfg.Store,
		provider:   cfg.Provider,
		catalog:    cfg.Catalog,
		roleQueue:  cfg.RoleQueue,
		inviteLink: cfg.InviteLink,
		logger:     logger.WithField("component", "auth_flow"),
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// Begin issues a login URL for subjectID and records the pending request
func (f *Flow) Begin(ctx context.Context, subjectID string) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject id is required")
	}

	loginURL, state, err := f.provider.BeginLogin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	req := &identity.AuthenticationRequest{
		CSRFToken:   state,
		SubjectID:   subjectID,
		RequestedAt: f.now().UTC(),
	}
	if err := f.store.CreateRequest(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	f.logger.WithField("subject_id", subjectID).Info("Authentication link created")
	return loginURL, nil
}

// Confirm completes the login bound to csrfToken with the provider code
func (f *Flow) Confirm(ctx context.Context, csrfToken, code string) (*Result, error) {
	ctx, span := flowTracer.Start(ctx, "auth.Confirm")
	defer span.End()

	result, err := f.confirm(ctx, csrfToken, code)
	f.metrics.RecordConfirmation(confirmationLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("subject_id", result.SubjectID))
	return result, nil
}

func (f *Flow) confirm(ctx context.Context, csrfToken, code string) (*Result, error) {
	req, err := f.store.GetRequest(ctx, csrfToken)
	if errors.Is(err, identity.ErrNotFound) {
		f.logger.Warn("Authentication attempted with an unknown CSRF token")
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}
	if req.Confirmed() {
		return nil, ErrAlreadyConfirmed
	}

	logger := f.logger.WithField("subject_id", req.SubjectID)

	token, err := f.provider.ExchangeCode(ctx, code)
	if err != nil {
		logger.WithError(err).Warn("Failed to exchange authorization code")
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	profile, err := f.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		logger.WithError(err).Warn("Failed to fetch profile")
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	cohortID, ok := f.catalog.Resolve(profile.Groups)
	if !ok {
		logger.WithField("groups", len(profile.Groups)).Error("No cohort group found in profile")
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, ErrCohortNotResolved)
	}

	result := &Result{
		SubjectID:  req.SubjectID,
		CohortID:   cohortID,
		InviteLink: f.inviteLink,
	}

	owners, err := f.store.FindIdentitiesByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}
	for _, owner := range owners {
		if owner.SubjectID == req.SubjectID {
			continue
		}
		if _, err := f.store.ArchiveIdentity(ctx, owner); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
		}
		f.metrics.RecordArchive()
		if err := f.roleQueue.Enqueue(ctx, owner.SubjectID, false); err != nil {
			logger.WithError(err).WithField("displaced_subject_id", owner.SubjectID).
				Error("Failed to queue role sync for displaced subject")
		}
		logger.WithField("displaced_subject_id", owner.SubjectID).
			Warn("Email was bound to another subject, previous identity archived")
		result.Displaced = append(result.Displaced, owner.SubjectID)
	}

	if _, err := f.store.MarkConfirmed(ctx, csrfToken); err != nil {
		if errors.Is(err, identity.ErrAlreadyConfirmed) {
			return nil, ErrAlreadyConfirmed
		}
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	ident := &identity.Identity{
		SubjectID:       req.SubjectID,
		DisplayName:     strings.TrimSpace(profile.Name),
		Email:           profile.Email,
		Token:           token,
		CohortID:        cohortID,
		AuthenticatedAt: f.now().UTC(),
	}
	if err := f.store.SaveIdentity(ctx, ident); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	if err := f.roleQueue.Enqueue(ctx, req.SubjectID, false); err != nil {
		logger.WithError(err).Error("Failed to queue role sync after authentication")
	}

	logger.WithField("cohort_id", cohortID).Info("Subject authenticated")
	return result, nil
}

// PurgeStale deletes authentication requests older than maxAge
func (f *Flow) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := f.store.PurgeRequests(ctx, f.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.logger.WithField("purged", n).Info("Purged stale authentication requests")
	}
	return n, nil
}

func confirmationLabel(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrRequestNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyConfirmed):
		return "already_confirmed"
	default:
		return "unavailable"
	}
}
