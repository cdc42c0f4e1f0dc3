// Package broker resolves a catalog title to game-server credentials. The
// account-server login exchanges themselves are proprietary client flows and
// live outside this module; brokers receive them as injected functions and
// add caching, validation and catalog plumbing on top.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
)

// Ticket is the outcome of one account-server token exchange: where the
// title's game server lives and how to authenticate to it.
type Ticket struct {
	Host      string
	Port      int
	PID       uint64
	Password  string
	AuthToken string
}

// Broker mints game-server credentials for a title. Implementations are safe
// for concurrent use; every worker calls Resolve for its own session.
type Broker interface {
	Resolve(ctx context.Context, title catalog.Title) (nex.Credentials, error)
}

// TokenFunc performs the console account-server exchange for one title and
// returns its game-server ticket.
type TokenFunc func(ctx context.Context, env *config.AccountEnv, gameServerID uint64, appVersion int) (*Ticket, error)

// AccountBroker resolves titles through the console account server. The
// principal id and password come back with each ticket; only the bearer
// token varies per title.
type AccountBroker struct {
	env   *config.AccountEnv
	token TokenFunc

	mu      sync.Mutex
	tickets map[uint64]*Ticket // keyed by game server id
}

// NewAccountBroker wires the console exchange function to the environment
// identity.
func NewAccountBroker(env *config.AccountEnv, token TokenFunc) *AccountBroker {
	return &AccountBroker{
		env:     env,
		token:   token,
		tickets: make(map[uint64]*Ticket),
	}
}

// Resolve implements Broker. Tickets are cached per game server id so worker
// pools don't repeat the account exchange; game-server logins themselves are
// never cached.
func (b *AccountBroker) Resolve(ctx context.Context, title catalog.Title) (nex.Credentials, error) {
	if title.ID == 0 {
		return nex.Credentials{}, fmt.Errorf("broker: title %s has no game server id", title.PrettyID())
	}

	b.mu.Lock()
	tk := b.tickets[title.ID]
	b.mu.Unlock()

	if tk == nil {
		var err error
		tk, err = b.token(ctx, b.env, title.ID, title.AV)
		if err != nil {
			return nex.Credentials{}, fmt.Errorf("broker: token exchange for %s: %w", title.PrettyID(), err)
		}
		b.mu.Lock()
		b.tickets[title.ID] = tk
		b.mu.Unlock()
	}

	creds := nex.Credentials{
		Host:      tk.Host,
		Port:      tk.Port,
		PID:       tk.PID,
		Password:  tk.Password,
		AccessKey: title.Key,
		Version:   title.Version(),
	}
	if tk.AuthToken != "" {
		creds.AuthInfo = &nex.AuthenticationInfo{Token: tk.AuthToken, NGSVersion: 2}
	}
	return creds, nil
}

// HandheldTokenFunc performs the handheld account exchange. The handheld
// flow addresses servers by title id rather than game server id.
type HandheldTokenFunc func(ctx context.Context, env *config.HandheldEnv, titleID uint64) (*Ticket, error)

// HandheldBroker resolves titles through the handheld account server. The
// handheld transport speaks the older framing, so every credential carries
// PRUDPVersion 1, and the principal identity comes from the environment
// rather than the ticket.
type HandheldBroker struct {
	env   *config.HandheldEnv
	token HandheldTokenFunc

	mu      sync.Mutex
	tickets map[uint64]*Ticket
}

// NewHandheldBroker wires the handheld exchange function to the environment
// identity.
func NewHandheldBroker(env *config.HandheldEnv, token HandheldTokenFunc) *HandheldBroker {
	return &HandheldBroker{
		env:     env,
		token:   token,
		tickets: make(map[uint64]*Ticket),
	}
}

// Resolve implements Broker.
func (b *HandheldBroker) Resolve(ctx context.Context, title catalog.Title) (nex.Credentials, error) {
	b.mu.Lock()
	tk := b.tickets[title.AID]
	b.mu.Unlock()

	if tk == nil {
		var err error
		tk, err = b.token(ctx, b.env, title.AID)
		if err != nil {
			return nex.Credentials{}, fmt.Errorf("broker: handheld exchange for %s: %w", title.PrettyID(), err)
		}
		b.mu.Lock()
		b.tickets[title.AID] = tk
		b.mu.Unlock()
	}

	creds := nex.Credentials{
		Host:         tk.Host,
		Port:         tk.Port,
		PID:          b.env.PID,
		Password:     b.env.Password,
		AccessKey:    title.Key,
		Version:      title.Version(),
		PRUDPVersion: 1,
	}
	// A few titles require the ticket's bearer token at login; the exchange
	// function returns one only for those.
	if tk.AuthToken != "" {
		creds.AuthInfo = &nex.AuthenticationInfo{Token: tk.AuthToken, NGSVersion: 2}
	}
	return creds, nil
}
