package jobs

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/roles"
)

// RoleSyncReason is the audit log reason attached to role changes
const RoleSyncReason = "Role synchronization"

// IdentityGetter loads identities
type IdentityGetter interface {
	GetIdentity(ctx context.Context, subjectID string) (*identity.Identity, error)
}

// PolicySource provides the resolved role policy
type PolicySource interface {
	Policy(ctx context.Context) (roles.Policy, error)
}

// RoleSync reconciles the platform roles of one subject per tick
type RoleSync struct {
	source     Source
	identities IdentityGetter
	platform   roles.Platform
	policy     PolicySource
	logger     logrus.FieldLogger
}

// NewRoleSync creates a RoleSync ticker
func NewRoleSync(source Source, identities IdentityGetter, platform roles.Platform, policy PolicySource, logger logrus.FieldLogger) *RoleSync {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RoleSync{
		source:     source,
		identities: identities,
		platform:   platform,
		policy:     policy,
		logger:     logger.WithField("kind", string(source.Kind())),
	}
}

// Tick pops the next request and reconciles its subject. A request whose
// sync fails is dropped; the producer queues the subject again later.
func (r *RoleSync) Tick(ctx context.Context) (Outcome, error) {
	req, err := popNext(ctx, r.source)
	if errors.Is(err, errNoRequest) {
		return NoRequestToHandle, nil
	}
	if err != nil {
		return TemporaryUnavailable, err
	}
	return r.Sync(ctx, req.SubjectID)
}

// Sync computes and applies the role diff of a subject
func (r *RoleSync) Sync(ctx context.Context, subjectID string) (Outcome, error) {
	logger := r.logger.WithField("subject_id", subjectID)

	policy, err := r.policy.Policy(ctx)
	if err != nil {
		return TemporaryUnavailable, err
	}

	var (
		assigned roles.Set
		present  bool
		ident    *identity.Identity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assigned, present, err = r.platform.AssignedRoles(gctx, subjectID)
		return err
	})
	g.Go(func() error {
		found, err := r.identities.GetIdentity(gctx, subjectID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ident = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return TemporaryUnavailable, err
	}

	if !present {
		logger.Debug("Subject is not a member, nothing to sync")
		return Success, nil
	}

	subject := roles.Subject{HasIdentity: ident != nil}
	if ident != nil {
		subject.CohortID = ident.CohortID
	}

	diff := roles.Compute(policy, subject, assigned)
	if diff.IsEmpty() {
		return Success, nil
	}

	if err := r.platform.ApplyRoleDiff(ctx, subjectID, diff, RoleSyncReason); err != nil {
		return TemporaryUnavailable, err
	}

	logger.WithFields(logrus.Fields{
		"assigned": diff.ToAssign(),
		"removed":  diff.ToRemove(),
	}).Info("Roles synchronized")
	return Success, nil
}
