// Package identity resolves which candidate a device session belongs to.
// The identity is learned asynchronously and changes on sign-in and sign-out.
package identity

import (
	"context"
	"errors"
	"sort"
	"sync"

	"guardshift/internal/utils"
)

var ErrNotSignedIn = errors.New("not signed in")

// Provider is the authentication collaborator seen by the feed subscriber
// and the tracking service.
type Provider interface {
	// CurrentUserID blocks until a user is signed in or ctx is done.
	CurrentUserID(ctx context.Context) (string, error)
	// OnAuthStateChange registers fn, calls it once with the current user id
	// ("" when signed out) and again after every change. The returned func
	// unregisters it.
	OnAuthStateChange(fn func(userID string)) (unsubscribe func())
}

type Identity struct {
	UserID   string
	UserType string
	Phone    string
}

// JWTProvider is a Provider fed by signed access tokens.
type JWTProvider struct {
	secret string

	mu        sync.Mutex
	current   *Identity
	signedIn  chan struct{}
	listeners map[int]func(string)
	nextID    int
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret:    secret,
		signedIn:  make(chan struct{}),
		listeners: make(map[int]func(string)),
	}
}

// SignIn validates token and makes its subject the current identity.
func (p *JWTProvider) SignIn(token string) (*Identity, error) {
	claims, err := utils.ValidateToken(token, p.secret)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:   claims.UserID,
		UserType: claims.UserType,
		Phone:    claims.Phone,
	}

	p.mu.Lock()
	changed := p.current == nil || p.current.UserID != id.UserID
	wasSignedOut := p.current == nil
	p.current = id
	if wasSignedOut {
		close(p.signedIn)
	}
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	if changed {
		notify(listeners, id.UserID)
	}
	return id, nil
}

func (p *JWTProvider) SignOut() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.signedIn = make(chan struct{})
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	notify(listeners, "")
}

// Current returns the signed-in identity without blocking.
func (p *JWTProvider) Current() (*Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, false
	}
	id := *p.current
	return &id, true
}

func (p *JWTProvider) CurrentUserID(ctx context.Context) (string, error) {
	for {
		p.mu.Lock()
		if p.current != nil {
			id := p.current.UserID
			p.mu.Unlock()
			return id, nil
		}
		wait := p.signedIn
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (p *JWTProvider) OnAuthStateChange(fn func(userID string)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	current := ""
	if p.current != nil {
		current = p.current.UserID
	}
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *JWTProvider) snapshotListeners() []func(string) {
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(string), 0, len(ids))
	for _, id := range ids {
		out = append(out, p.listeners[id])
	}
	return out
}

func notify(listeners []func(string), userID string) {
	for _, fn := range listeners {
		fn(userID)
	}
}
