package tor

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"time"

	"github.com/cretz/bine/control"
	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
	"reformagkh/pkg/utils"
)

// Rotator requests a fresh proxy identity.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// ControlRotator talks to the Tor control port. A new connection is opened for
// every rotation, mirroring how rarely rotation happens compared to page fetches.
type ControlRotator struct {
	addr     string
	password string
	timeout  time.Duration
	log      *logrus.Entry

	rotations int
}

// NewControlRotator creates a rotator for the configured control port.
func NewControlRotator(cfg config.TorConfig, log *logrus.Entry) *ControlRotator {
	return &ControlRotator{
		addr:     cfg.ControlAddr,
		password: cfg.ControlPassword,
		timeout:  cfg.ControlTimeout,
		log:      log.WithField("component", "tor_rotator"),
	}
}

// Rotate authenticates with the control password and sends SIGNAL NEWNYM.
// Every failure wraps utils.ErrRotation and is fatal for the run.
func (r *ControlRotator) Rotate(ctx context.Context) error {
	dialer := net.Dialer{Timeout: r.timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("%w: control port %s unreachable: %w", utils.ErrRotation, r.addr, err)
	}
	if r.timeout > 0 {
		netConn.SetDeadline(time.Now().Add(r.timeout))
	}

	conn := control.NewConn(textproto.NewConn(netConn))
	defer conn.Close()

	if err := conn.Authenticate(r.password); err != nil {
		return fmt.Errorf("%w: authenticate on %s: %w", utils.ErrRotation, r.addr, err)
	}
	if err := conn.Signal("NEWNYM"); err != nil {
		return fmt.Errorf("%w: NEWNYM on %s: %w", utils.ErrRotation, r.addr, err)
	}

	r.rotations++
	r.log.WithField("rotations", r.rotations).Info("Tor identity rotated")
	return nil
}

// Rotations returns how many identities this rotator has requested.
func (r *ControlRotator) Rotations() int {
	return r.rotations
}

// NoopRotator is used in direct and cache-only modes, where there is no identity to rotate.
type NoopRotator struct{}

// Rotate always fails: callers only rotate in anonymized mode.
func (NoopRotator) Rotate(context.Context) error {
	return fmt.Errorf("%w: not running through Tor", utils.ErrRotation)
}
