package broker

import (
	"context"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/nex"
)

// StaticBroker serves fixed server coordinates for every title. The specific
// harvest modes use it when the operator already holds a ticket and names the
// server on the command line.
type StaticBroker struct {
	Host     string
	Port     int
	PID      uint64
	Password string
	// PRUDPVersion is 1 when the target speaks the handheld framing.
	PRUDPVersion int
}

// Resolve implements Broker. The access key and protocol version still come
// from the title.
func (b StaticBroker) Resolve(_ context.Context, title catalog.Title) (nex.Credentials, error) {
	return nex.Credentials{
		Host:         b.Host,
		Port:         b.Port,
		PID:          b.PID,
		Password:     b.Password,
		AccessKey:    title.Key,
		Version:      title.Version(),
		PRUDPVersion: b.PRUDPVersion,
	}, nil
}
