package nex

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// RMCError is a named application-level protocol error, e.g.
// "Core::NotImplemented" or "DataStore::NotFound". These surface to callers
// unchanged; only the caller knows whether a given name is fatal.
type RMCError struct {
	Name string
}

func (e *RMCError) Error() string {
	return fmt.Sprintf("rmc error: %s", e.Name)
}

// Well-known RMC error names the harvester branches on.
const (
	ErrNameNotImplemented   = "Core::NotImplemented"
	ErrNameDataStoreMissing = "DataStore::NotFound"
	ErrNameRankingMissing   = "Ranking::NotFound"
)

// TransportError wraps a session-layer failure: connection closed mid-call,
// handshake refused, socket timeout. The retry wrapper rebuilds the session
// on these and never gives up.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRMC reports whether err is an application-level RMC error, and returns
// its name when it is.
func IsRMC(err error) (string, bool) {
	var rmc *RMCError
	if errors.As(err, &rmc) {
		return rmc.Name, true
	}
	return "", false
}

// IsNotImplemented reports whether err is Core::NotImplemented.
func IsNotImplemented(err error) bool {
	name, ok := IsRMC(err)
	return ok && name == ErrNameNotImplemented
}

// IsNotFound reports whether err is a DataStore:: or Ranking:: NotFound.
func IsNotFound(err error) bool {
	name, ok := IsRMC(err)
	return ok && (name == ErrNameDataStoreMissing || name == ErrNameRankingMissing)
}

// IsTransport classifies err as a transport/session-class failure. RMC
// errors are never transport errors. Context cancellation is not a transport
// error either: it is the caller asking to stop.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := IsRMC(err); ok {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	// Session libraries report closed connections as plain errors.
	msg := err.Error()
	return strings.Contains(msg, "connection is closed") ||
		strings.Contains(msg, "connection failed") ||
		strings.Contains(msg, "handshake")
}
