package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/queue"
	"github.com/platinummonkey/rollcall/pkg/roles"
)

type fakeSource struct {
	kind    queue.Kind
	high    []string
	low     []string
	popErr  error
	settled []string
}

func (s *fakeSource) Kind() queue.Kind {
	return s.kind
}

func (s *fakeSource) Wake() <-chan struct{} {
	return nil
}

func (s *fakeSource) PopOldest(ctx context.Context, lowPriority bool) (*queue.Request, error) {
	if s.popErr != nil {
		return nil, s.popErr
	}
	tier := &s.high
	if lowPriority {
		tier = &s.low
	}
	if len(*tier) == 0 {
		return nil, nil
	}
	id := (*tier)[0]
	*tier = (*tier)[1:]
	return &queue.Request{SubjectID: id, QueuedAt: time.Now(), LowPriority: lowPriority}, nil
}

func (s *fakeSource) WaitSettled(ctx context.Context, req *queue.Request) error {
	s.settled = append(s.settled, req.SubjectID)
	return nil
}

type fakeIdentities struct {
	mu         sync.Mutex
	identities map[string]*identity.Identity
	getErr     error
	saved      []*identity.Identity
}

func newFakeIdentities(idents ...*identity.Identity) *fakeIdentities {
	f := &fakeIdentities{identities: map[string]*identity.Identity{}}
	for _, ident := range idents {
		f.identities[ident.SubjectID] = ident
	}
	return f
}

func (f *fakeIdentities) GetIdentity(ctx context.Context, subjectID string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	ident, ok := f.identities[subjectID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (f *fakeIdentities) SaveIdentity(ctx context.Context, ident *identity.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ident
	f.identities[ident.SubjectID] = &cp
	f.saved = append(f.saved, &cp)
	return nil
}

type fakePlatform struct {
	mu       sync.Mutex
	members  map[string]roles.Set
	applied  map[string]roles.Diff
	applyErr error
	rolesErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{members: map[string]roles.Set{}, applied: map[string]roles.Diff{}}
}

func (p *fakePlatform) FindOrCreateRole(ctx context.Context, name, reason string) (roles.Role, error) {
	return roles.Role{ID: roles.RoleID(name), Name: name}, nil
}

func (p *fakePlatform) ApplyRoleDiff(ctx context.Context, subjectID string, diff roles.Diff, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applyErr != nil {
		return p.applyErr
	}
	p.applied[subjectID] = diff
	p.members[subjectID] = diff.Apply(p.members[subjectID])
	return nil
}

func (p *fakePlatform) AssignedRoles(ctx context.Context, subjectID string) (roles.Set, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rolesErr != nil {
		return nil, false, p.rolesErr
	}
	assigned, ok := p.members[subjectID]
	if !ok {
		return nil, false, nil
	}
	return assigned.Clone(), true, nil
}

func (p *fakePlatform) ListMembers(ctx context.Context, after string) ([]string, error) {
	return nil, nil
}

type staticPolicy struct {
	policy roles.Policy
	err    error
}

func (s staticPolicy) Policy(ctx context.Context) (roles.Policy, error) {
	return s.policy, s.err
}

type enqueued struct {
	subject string
	low     bool
}

type recordingQueue struct {
	mu    sync.Mutex
	calls []enqueued
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, subjectID string, lowPriority bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.calls = append(q.calls, enqueued{subjectID, lowPriority})
	return nil
}
