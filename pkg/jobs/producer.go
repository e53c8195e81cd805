package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/observability"
	"github.com/platinummonkey/rollcall/pkg/queue"
)

// SubjectLister lists every subject with an identity
type SubjectLister interface {
	ListSubjectIDs(ctx context.Context) ([]string, error)
}

// MemberLister pages through platform members. An empty page means the end
// of the list.
type MemberLister interface {
	ListMembers(ctx context.Context, after string) ([]string, error)
}

// Producer sweeps known identities and platform members, queueing one low
// priority role sync and user info sync per subject it visits. Each Tick
// visits at most one identity and one member.
type Producer struct {
	identities SubjectLister
	members    MemberLister
	roleQueue  queue.Enqueuer
	infoQueue  queue.Enqueuer
	logger     logrus.FieldLogger
	metrics    *observability.Metrics

	mu         sync.Mutex
	known      []string
	page       []string
	lastMember string
}

// NewProducer creates a Producer
func NewProducer(identities SubjectLister, members MemberLister, roleQueue, infoQueue queue.Enqueuer, logger logrus.FieldLogger, metrics *observability.Metrics) *Producer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Producer{
		identities: identities,
		members:    members,
		roleQueue:  roleQueue,
		infoQueue:  infoQueue,
		logger:     logger.WithField("component", "producer"),
		metrics:    metrics,
	}
}

// Tick advances both cursors by one subject
func (p *Producer) Tick(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	if subjectID, ok, err := p.nextKnown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to list identities: %w", err))
	} else if ok {
		errs = append(errs, p.enqueue(ctx, subjectID))
	}

	if subjectID, ok, err := p.nextMember(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to list members: %w", err))
	} else if ok {
		errs = append(errs, p.enqueue(ctx, subjectID))
	}

	err := errors.Join(errs...)
	p.metrics.RecordProducerTick(err)
	return err
}

func (p *Producer) nextKnown(ctx context.Context) (string, bool, error) {
	if len(p.known) == 0 {
		ids, err := p.identities.ListSubjectIDs(ctx)
		if err != nil {
			return "", false, err
		}
		p.known = ids
		if len(ids) > 0 {
			p.logger.WithField("identities", len(ids)).Debug("Identity sweep restarted")
		}
	}
	if len(p.known) == 0 {
		return "", false, nil
	}
	id := p.known[0]
	p.known = p.known[1:]
	return id, true, nil
}

func (p *Producer) nextMember(ctx context.Context) (string, bool, error) {
	if len(p.page) == 0 {
		page, err := p.members.ListMembers(ctx, p.lastMember)
		if err != nil {
			return "", false, err
		}
		if len(page) == 0 {
			p.lastMember = ""
			return "", false, nil
		}
		p.page = page
		p.lastMember = page[len(page)-1]
	}
	id := p.page[0]
	p.page = p.page[1:]
	return id, true, nil
}

func (p *Producer) enqueue(ctx context.Context, subjectID string) error {
	if err := p.roleQueue.Enqueue(ctx, subjectID, true); err != nil {
		return err
	}
	return p.infoQueue.Enqueue(ctx, subjectID, true)
}
