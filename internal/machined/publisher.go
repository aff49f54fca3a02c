// Package machined is a best-effort publisher that registers running
// domains with systemd-machined over D-Bus, so "machinectl list" and
// "machinectl login" see containers this driver started — the same
// courtesy libvirt's LXC driver extends via virCgroupNewMachine. It is
// never a precondition for lifecycle correctness (spec §4.9): every method
// logs and swallows its error instead of propagating it.
package machined

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/coreos/go-systemd/machine1"

	"github.com/lcdriver/lcdriverd/internal/domain"
)

// Publisher wraps a machine1 D-Bus connection. A nil *Publisher (or one
// whose connection failed to dial) is valid and simply does nothing.
type Publisher struct {
	conn *machine1.Conn
	log  hclog.Logger
}

// New dials systemd-machined. If the system D-Bus is unreachable — the
// common case in CI and in containers without a running systemd — it
// returns a disabled Publisher rather than an error, since machined
// registration is purely observational.
func New(log hclog.Logger) *Publisher {
	log = log.Named("machined")
	conn, err := machine1.New()
	if err != nil {
		log.Debug("systemd-machined unreachable, running without machine registration", "error", err)
		return &Publisher{log: log}
	}
	return &Publisher{conn: conn, log: log}
}

// Register tells machined about a domain that just transitioned to
// RUNNING.
func (p *Publisher) Register(rec *domain.Record) {
	if p == nil || p.conn == nil {
		return
	}
	_, err := p.conn.CreateMachine(
		rec.Definition.Name,
		rec.Definition.UUID[:],
		"lcdriver", // driver.Tag; not imported, since driver imports this package
		"container",
		rec.Definition.ID,
		"",
		nil,
	)
	if err != nil {
		p.log.Debug("register machine failed", "domain", rec.Definition.Name, "error", err)
	}
}

// Unregister tells machined a domain has been destroyed.
func (p *Publisher) Unregister(rec *domain.Record) {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.TerminateMachine(rec.Definition.Name); err != nil {
		p.log.Debug("terminate machine failed", "domain", rec.Definition.Name, "error", err)
	}
}
