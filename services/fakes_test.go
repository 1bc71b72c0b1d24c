package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

// In-memory repository fakes preserving the stores' contracts, including
// the challenge consume atomicity and error taxonomy.

type memChallengeRepo struct {
	mu         sync.Mutex
	seq        int
	challenges map[string]*domain.VerificationChallenge
	issueErr   error
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{challenges: make(map[string]*domain.VerificationChallenge)}
}

func (r *memChallengeRepo) Issue(ctx context.Context, challenge *domain.VerificationChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issueErr != nil {
		return r.issueErr
	}
	r.seq++
	challenge.ID = fmt.Sprintf("challenge-%d", r.seq)
	cp := *challenge
	r.challenges[challenge.ID] = &cp
	return nil
}

func (r *memChallengeRepo) GetActive(ctx context.Context, userID, serverID string) (*domain.VerificationChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.VerificationChallenge
	now := time.Now()
	for _, c := range r.challenges {
		if c.UserID != userID || c.ServerID != serverID || !c.Active(now) {
			continue
		}
		if best == nil || c.IssuedAt.After(best.IssuedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, serrors.ErrNoActiveChallenge
	}
	cp := *best
	return &cp, nil
}

func (r *memChallengeRepo) Consume(ctx context.Context, challengeID string) (*domain.VerificationChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[challengeID]
	if !ok {
		return nil, serrors.ErrNoActiveChallenge
	}
	if c.Used {
		return nil, serrors.ErrChallengeUsed
	}
	if !time.Now().Before(c.ExpiresAt) {
		return nil, serrors.ErrChallengeExpired
	}
	c.Used = true
	c.UsedAt = time.Now()
	cp := *c
	return &cp, nil
}

type memServerRepo struct {
	mu      sync.Mutex
	servers map[string]*domain.LinkedServer
}

func newMemServerRepo() *memServerRepo {
	return &memServerRepo{servers: make(map[string]*domain.LinkedServer)}
}

func serverKey(userID, serverID string) string { return userID + "/" + serverID }

func (r *memServerRepo) Upsert(ctx context.Context, server *domain.LinkedServer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *server
	r.servers[serverKey(server.UserID, server.ServerID)] = &cp
	return nil
}

func (r *memServerRepo) Remove(ctx context.Context, userID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := serverKey(userID, serverID)
	if _, ok := r.servers[key]; !ok {
		return serrors.ErrNotFound
	}
	delete(r.servers, key)
	return nil
}

func (r *memServerRepo) Get(ctx context.Context, userID, serverID string) (*domain.LinkedServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[serverKey(userID, serverID)]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memServerRepo) ListByUser(ctx context.Context, userID string) ([]*domain.LinkedServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.LinkedServer{}
	for _, s := range r.servers {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memServerRepo) ListAll(ctx context.Context) ([]*domain.LinkedServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.LinkedServer{}
	for _, s := range r.servers {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memServerRepo) TouchLastActive(ctx context.Context, userID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[serverKey(userID, serverID)]
	if !ok {
		return serrors.ErrNotFound
	}
	s.LastActive = time.Now()
	return nil
}

type memCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{creds: make(map[string]*domain.Credential)}
}

func (r *memCredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cred
	r.creds[cred.UserID] = &cp
	return nil
}

func (r *memCredentialRepo) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCredentialRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[userID]; !ok {
		return serrors.ErrNotFound
	}
	delete(r.creds, userID)
	return nil
}

type memTelemetryRepo struct {
	mu      sync.Mutex
	samples map[string][]domain.ResourceSample
}

func newMemTelemetryRepo() *memTelemetryRepo {
	return &memTelemetryRepo{samples: make(map[string][]domain.ResourceSample)}
}

func (r *memTelemetryRepo) Append(ctx context.Context, serverID string, sample domain.ResourceSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append(r.samples[serverID], sample)
	if len(history) > domain.TelemetryHistoryCap {
		history = history[len(history)-domain.TelemetryHistoryCap:]
	}
	r.samples[serverID] = history
	return nil
}

func (r *memTelemetryRepo) History(ctx context.Context, serverID string) ([]domain.ResourceSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ResourceSample{}, r.samples[serverID]...), nil
}

// stubPanel is a scriptable domain.PanelAPI.
type stubPanel struct {
	mu           sync.Mutex
	servers      []domain.PanelServer
	listErr      error
	detailErr    error
	usageErr     error
	fileContents string
	fileErr      error
	powerErr     error
	signals      []domain.PowerSignal
}

func (p *stubPanel) ListServers(ctx context.Context) ([]domain.PanelServer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.servers, nil
}

func (p *stubPanel) GetServerDetails(ctx context.Context, serverID string) (*domain.ServerDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detailErr != nil {
		return nil, p.detailErr
	}
	return &domain.ServerDetails{Identifier: serverID, Name: "survival world"}, nil
}

func (p *stubPanel) GetServerResources(ctx context.Context, serverID string) (*domain.ResourceUsage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usageErr != nil {
		return nil, p.usageErr
	}
	return &domain.ResourceUsage{CurrentState: "running", CPUPercent: 12.5, MemoryBytes: 1 << 30}, nil
}

func (p *stubPanel) SendPowerSignal(ctx context.Context, serverID string, signal domain.PowerSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.powerErr != nil {
		return p.powerErr
	}
	p.signals = append(p.signals, signal)
	return nil
}

func (p *stubPanel) GetFileContents(ctx context.Context, serverID, path string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileErr != nil {
		return "", p.fileErr
	}
	return p.fileContents, nil
}

// stubProvider hands out a fixed panel client for any user.
type stubProvider struct {
	panel *stubPanel
	err   error
}

func (p *stubProvider) ClientFor(ctx context.Context, userID string) (domain.PanelAPI, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.panel, nil
}
