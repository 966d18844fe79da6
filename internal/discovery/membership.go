// Package discovery provides gossip-based cluster membership for the
// processes hosting a WAL, independent of the on-disk log format itself.
// It answers one question for a raftlogd process: which nodes are
// currently up, so an election layer above it can decide which one holds
// the append-mode file handle for a given data directory.
package discovery

import (
	"net"
	"os"

	"github.com/hashicorp/serf/serf"
	"github.com/rs/zerolog"
)

// writerAddrTag is the Serf tag a node advertises for the address other
// nodes should target to reach its WAL.
const writerAddrTag = "wal_addr"

type Config struct {
	NodeName       string
	BindAddr       string
	Tags           map[string]string
	StartJoinAddrs []string
}

// Handler is notified when a node joins or leaves the gossip cluster.
// raftlogd's agent implements this by logging each join and leave.
type Handler interface {
	Join(name, walAddr string) error
	Leave(name string) error
}

// Membership wraps a Serf instance, translating its join/leave events into
// Handler calls.
type Membership struct {
	Config
	handler Handler
	serf    *serf.Serf
	events  chan serf.Event
	logger  *zerolog.Logger
}

func New(handler Handler, config Config) (*Membership, error) {
	logger := zerolog.New(os.Stderr).With().Str("component", "discovery").Logger()
	m := &Membership{
		Config:  config,
		handler: handler,
		logger:  &logger,
	}
	if err := m.setupSerf(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Membership) setupSerf() (err error) {
	addr, err := net.ResolveTCPAddr("tcp", m.BindAddr)
	if err != nil {
		return err
	}
	eventCh := make(chan serf.Event)
	m.events = eventCh

	config := serf.DefaultConfig()
	config.Init()
	config.MemberlistConfig.BindAddr = addr.IP.String()
	config.MemberlistConfig.BindPort = addr.Port
	config.EventCh = eventCh
	config.Tags = m.Tags
	config.NodeName = m.Config.NodeName

	m.serf, err = serf.Create(config)
	if err != nil {
		return err
	}

	go m.eventHandler()

	if m.StartJoinAddrs != nil {
		if _, err := m.serf.Join(m.StartJoinAddrs, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *Membership) eventHandler() {
	for e := range m.events {
		switch e.EventType() {
		case serf.EventMemberJoin:
			for _, member := range e.(serf.MemberEvent).Members {
				if m.isLocal(member) {
					continue
				}
				m.handleJoin(member)
			}
		case serf.EventMemberLeave, serf.EventMemberFailed:
			for _, member := range e.(serf.MemberEvent).Members {
				if m.isLocal(member) {
					continue
				}
				m.handleLeave(member)
			}
		}
	}
}

func (m *Membership) isLocal(member serf.Member) bool {
	return m.serf.LocalMember().Name == member.Name
}

// Members returns a point-in-time snapshot of the cluster.
func (m *Membership) Members() []serf.Member {
	return m.serf.Members()
}

// Leave gracefully removes the local node from the cluster.
func (m *Membership) Leave() error {
	return m.serf.Leave()
}

func (m *Membership) logError(err error, msg string, member serf.Member) {
	m.logger.Error().Err(err).Str("name", member.Name).Str(writerAddrTag, member.Tags[writerAddrTag]).Msg(msg)
}

func (m *Membership) handleJoin(member serf.Member) {
	if err := m.handler.Join(member.Name, member.Tags[writerAddrTag]); err != nil {
		m.logError(err, "failed to join", member)
		return
	}
	m.logger.Info().Str("name", member.Name).Str("event", "join").Msg("member joined")
}

func (m *Membership) handleLeave(member serf.Member) {
	if err := m.handler.Leave(member.Name); err != nil {
		m.logError(err, "failed to leave", member)
		return
	}
	m.logger.Info().Str("name", member.Name).Str("event", "leave").Msg("member left")
}
