package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"emsi-preparator/internal/domain"
	"github.com/sirupsen/logrus"
)

// IdentityProvider holds the logged-in user of one session. It is set by
// Login or Restore and cleared by Logout.
type IdentityProvider struct {
	sessionID string
	store     IdentityStore
	auth      AuthAPI
	log       logrus.FieldLogger

	mu      sync.RWMutex
	current *domain.UserIdentity
}

func NewIdentityProvider(sessionID string, store IdentityStore, auth AuthAPI, log logrus.FieldLogger) *IdentityProvider {
	return &IdentityProvider{
		sessionID: sessionID,
		store:     store,
		auth:      auth,
		log:       log.WithField("session", sessionID),
	}
}

// SessionID returns the key identities are stored under.
func (p *IdentityProvider) SessionID() string {
	return p.sessionID
}

// Login authenticates against the API and remembers the identity.
func (p *IdentityProvider) Login(ctx context.Context, creds domain.Credentials) (domain.UserIdentity, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := domain.ValidateStruct(creds); err != nil {
		return domain.UserIdentity{}, err
	}
	identity, err := p.auth.Login(ctx, creds)
	if err != nil {
		p.log.WithError(err).Warn("login failed")
		return domain.UserIdentity{}, err
	}
	if identity.ID == "" {
		return domain.UserIdentity{}, &domain.ServiceError{Op: "login", StatusCode: 200, Message: "login response carried no user id"}
	}
	if err := p.store.Save(ctx, p.sessionID, identity); err != nil {
		return domain.UserIdentity{}, err
	}
	p.set(&identity)
	p.log.WithField("user", identity.ID).Info("logged in")
	return identity, nil
}

// Register creates an account. It does not log the user in.
func (p *IdentityProvider) Register(ctx context.Context, reg domain.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	if err := domain.ValidateStruct(reg); err != nil {
		return err
	}
	return p.auth.Register(ctx, reg)
}

// Restore loads a previously saved identity for this session.
func (p *IdentityProvider) Restore(ctx context.Context) (domain.UserIdentity, error) {
	identity, err := p.store.Load(ctx, p.sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoIdentity) {
			p.log.WithError(err).Warn("restore identity failed")
		}
		return domain.UserIdentity{}, err
	}
	p.set(&identity)
	return identity, nil
}

// Logout forgets the identity locally and in the store.
func (p *IdentityProvider) Logout(ctx context.Context) error {
	p.set(nil)
	return p.store.Delete(ctx, p.sessionID)
}

// Current returns the identity, if one is set.
func (p *IdentityProvider) Current() (domain.UserIdentity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return domain.UserIdentity{}, false
	}
	return *p.current, true
}

func (p *IdentityProvider) set(identity *domain.UserIdentity) {
	p.mu.Lock()
	p.current = identity
	p.mu.Unlock()
}
