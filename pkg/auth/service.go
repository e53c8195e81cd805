package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/queue"
)

// InfoRefreshHint is how long a user info refresh usually takes to land
const InfoRefreshHint = 750 * time.Millisecond

// ErrIdentityNotFound is returned when a subject has no identity
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityReader reads identities for administrative views
type IdentityReader interface {
	GetIdentity(ctx context.Context, subjectID string) (*identity.Identity, error)
	CountIdentities(ctx context.Context) (total, withCohort int, err error)
}

// PendingQueue is a queue that can be written and inspected
type PendingQueue interface {
	queue.Enqueuer
	Kind() queue.Kind
	Pending(ctx context.Context) (high, low int, err error)
}

// IdentityView is an identity without its tokens
type IdentityView struct {
	SubjectID       string    `json:"subject_id"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	CohortID        string    `json:"cohort_id,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// QueueStats counts pending requests of one queue
type QueueStats struct {
	High int `json:"high"`
	Low  int `json:"low"`
}

// Stats summarizes identities and pending work
type Stats struct {
	Identities           int                   `json:"identities"`
	IdentitiesWithCohort int                   `json:"identities_with_cohort"`
	Queues               map[string]QueueStats `json:"queues"`
}

// Service implements the administrative operations on subjects
type Service struct {
	identities IdentityReader
	roleQueue  PendingQueue
	infoQueue  PendingQueue
	logger     logrus.FieldLogger
}

// NewService creates a Service
func NewService(identities IdentityReader, roleQueue, infoQueue PendingQueue, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		identities: identities,
		roleQueue:  roleQueue,
		infoQueue:  infoQueue,
		logger:     logger.WithField("component", "user_service"),
	}
}

// UserInfo returns the identity of a subject
func (s *Service) UserInfo(ctx context.Context, subjectID string) (*IdentityView, error) {
	ident, err := s.identities.GetIdentity(ctx, subjectID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}
	return &IdentityView{
		SubjectID:       ident.SubjectID,
		DisplayName:     ident.DisplayName,
		Email:           ident.Email,
		CohortID:        ident.CohortID,
		AuthenticatedAt: ident.AuthenticatedAt,
	}, nil
}

// RefreshRoles queues a high priority role sync
func (s *Service) RefreshRoles(ctx context.Context, subjectID string) error {
	if err := s.roleQueue.Enqueue(ctx, subjectID, false); err != nil {
		return fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}
	s.logger.WithField("subject_id", subjectID).Info("Role sync requested")
	return nil
}

// RefreshInfo queues a high priority user info sync and returns how long
// the caller should wait before looking at the result
func (s *Service) RefreshInfo(ctx context.Context, subjectID string) (time.Duration, error) {
	if err := s.infoQueue.Enqueue(ctx, subjectID, false); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}
	s.logger.WithField("subject_id", subjectID).Info("User info sync requested")
	return InfoRefreshHint, nil
}

// Stats counts identities and pending requests
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, withCohort, err := s.identities.CountIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
	}

	stats := &Stats{
		Identities:           total,
		IdentitiesWithCohort: withCohort,
		Queues:               make(map[string]QueueStats, 2),
	}
	for _, q := range []PendingQueue{s.roleQueue, s.infoQueue} {
		high, low, err := q.Pending(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTemporaryUnavailable, err)
		}
		stats.Queues[string(q.Kind())] = QueueStats{High: high, Low: low}
	}
	return stats, nil
}
