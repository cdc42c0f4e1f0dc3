package commands

import (
	"errors"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/nex"
)

// Providers are the proprietary client flows this module deliberately leaves
// out: the wire transport and the account-server token exchanges. A driver
// binary registers its implementations before Execute.
type Providers struct {
	// Dialer establishes authenticated game-server sessions.
	Dialer nex.Dialer
	// AccountToken performs the console account-server exchange.
	AccountToken broker.TokenFunc
	// HandheldToken performs the handheld account-server exchange.
	HandheldToken broker.HandheldTokenFunc
}

var active *Providers

// SetProviders registers the protocol implementations. Must be called before
// Execute for every mode that talks to a server; check_overlap and version
// work without it.
func SetProviders(p Providers) {
	active = &p
}

func providers() (*Providers, error) {
	if active == nil || active.Dialer == nil {
		return nil, errors.New("no session provider registered; link a protocol driver and call commands.SetProviders")
	}
	return active, nil
}
