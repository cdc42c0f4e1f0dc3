// Package session owns the lifecycle of authenticated game-server sessions:
// resolving credentials, dialing, and the retry policy that keeps a worker
// alive across transport failures. Application-level RMC errors pass through
// untouched; transport failures tear the session down, back off, and rebuild
// for as long as the context allows.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
)

// Factory mints retrying session handles for one title run.
type Factory struct {
	dialer nex.Dialer
	broker broker.Broker
	tuning *config.Tuning
	logger *log.Logger
}

// NewFactory wires a dialer and a credential broker together.
func NewFactory(dialer nex.Dialer, b broker.Broker, tuning *config.Tuning, logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &Factory{dialer: dialer, broker: b, tuning: tuning, logger: logger}
}

// Open resolves credentials for title and dials until a session comes up.
// Transport failures during dial back off and retry forever; any other
// failure is returned.
func (f *Factory) Open(ctx context.Context, title catalog.Title) (*Handle, error) {
	h := &Handle{
		id:      uuid.New(),
		factory: f,
		title:   title,
	}
	if err := h.rebuild(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Handle is one worker's session. A handle is not safe for concurrent use;
// every worker owns its own.
type Handle struct {
	id      uuid.UUID
	factory *Factory
	title   catalog.Title
	sess    nex.Session
}

// ID identifies the handle in log lines.
func (h *Handle) ID() string { return h.id.String() }

// Session exposes the current underlying session. After a transport failure
// inside Do the previous value is stale; callers must re-fetch.
func (h *Handle) Session() nex.Session { return h.sess }

// Close releases the underlying session.
func (h *Handle) Close() error {
	if h.sess == nil {
		return nil
	}
	err := h.sess.Close()
	h.sess = nil
	return err
}

// Do runs fn against the live session, retrying transport failures forever.
// Each retry tears down the session, waits out the backoff, and dials a
// fresh one before running fn again. RMC errors and context cancellation
// return immediately.
func (h *Handle) Do(ctx context.Context, op string, fn func(nex.Session) error) error {
	bo := h.factory.newBackOff()
	for {
		err := fn(h.sess)
		if err == nil {
			return nil
		}
		if !nex.IsTransport(err) {
			return err
		}

		wait := bo.NextBackOff()
		h.factory.logger.Printf("[session %s] %s: transport failure, rebuilding in %s: %v", shortID(h.id), op, wait.Round(time.Millisecond), err)
		if serr := sleepCtx(ctx, wait); serr != nil {
			return serr
		}
		if rerr := h.rebuild(ctx); rerr != nil {
			return rerr
		}
	}
}

// rebuild closes any current session and dials a new one, retrying transport
// failures forever.
func (h *Handle) rebuild(ctx context.Context) error {
	if h.sess != nil {
		_ = h.sess.Close()
		h.sess = nil
	}

	bo := h.factory.newBackOff()
	for {
		creds, err := h.factory.broker.Resolve(ctx, h.title)
		if err != nil {
			if !nex.IsTransport(err) {
				return err
			}
		} else {
			sess, derr := h.factory.dialer.Dial(ctx, creds)
			if derr == nil {
				h.sess = sess
				return nil
			}
			err = derr
			if !nex.IsTransport(err) {
				return fmt.Errorf("session: dial %s: %w", h.title.PrettyID(), err)
			}
		}

		wait := bo.NextBackOff()
		h.factory.logger.Printf("[session %s] dial %s failed, retrying in %s: %v", shortID(h.id), h.title.PrettyID(), wait.Round(time.Millisecond), err)
		if serr := sleepCtx(ctx, wait); serr != nil {
			return serr
		}
	}
}

// newBackOff builds the transport retry policy: exponential with jitter,
// capped interval, no elapsed-time limit.
func (f *Factory) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.tuning.RetryInitial.Std()
	bo.MaxInterval = f.tuning.RetryMax.Std()
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
