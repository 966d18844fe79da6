// Package agent wires together everything one raftlogd process needs: a
// WAL, cluster membership, and an authorizer, following the same
// setup/shutdown funnel style regardless of which components are present.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ttaaoo/raftlog/internal/auth"
	"github.com/ttaaoo/raftlog/internal/discovery"
	"github.com/ttaaoo/raftlog/internal/segment"
	"github.com/ttaaoo/raftlog/internal/wal"
)

type Config struct {
	NodeName        string
	DataDir         string
	BindAddr        string
	StartJoinAddrs  []string
	SegmentCapacity int
	SyncInterval    time.Duration
	ACLModelFile    string
	ACLPolicyFile   string
}

// An Agent runs on every raftlogd instance, owning the WAL, the
// authorizer, and cluster membership from New until Shutdown. It opens the
// WAL for append at startup; it takes part in no writer election.
type Agent struct {
	Config

	log        zerolog.Logger
	wal        *wal.WAL
	authorizer auth.Authorizer
	membership *discovery.Membership

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
}

func New(config Config, logger zerolog.Logger) (*Agent, error) {
	a := &Agent{
		Config:    config,
		log:       logger,
		shutdowns: make(chan struct{}),
	}

	setup := []func() error{
		a.setupAuth,
		a.setupWAL,
		a.setupMembership,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAuth() error {
	if a.Config.ACLModelFile != "" && a.Config.ACLPolicyFile != "" {
		authorizer, err := auth.New(a.Config.ACLModelFile, a.Config.ACLPolicyFile)
		if err != nil {
			return err
		}
		a.authorizer = authorizer
		return nil
	}
	authorizer, err := auth.NewDefault()
	if err != nil {
		return err
	}
	a.authorizer = authorizer
	return nil
}

func (a *Agent) setupWAL() error {
	w, err := wal.Open(a.Config.DataDir, wal.Options{
		Segment:      segment.Options{Mode: segment.ModeAppend, MaxCount: a.Config.SegmentCapacity},
		SyncInterval: a.Config.SyncInterval,
	})
	if err != nil {
		return err
	}
	a.wal = w
	return nil
}

// membershipHandler adapts the Agent onto discovery.Handler without
// exposing the WAL itself as a join/leave target: joining and leaving the
// gossip cluster does not, by itself, hand off write ownership of the log.
type membershipHandler struct {
	log zerolog.Logger
}

func (h membershipHandler) Join(name, walAddr string) error {
	h.log.Info().Str("name", name).Str("wal_addr", walAddr).Msg("peer joined cluster")
	return nil
}

func (h membershipHandler) Leave(name string) error {
	h.log.Info().Str("name", name).Msg("peer left cluster")
	return nil
}

func (a *Agent) setupMembership() error {
	if a.Config.BindAddr == "" {
		return nil
	}
	m, err := discovery.New(membershipHandler{log: a.log}, discovery.Config{
		NodeName:       a.Config.NodeName,
		BindAddr:       a.Config.BindAddr,
		StartJoinAddrs: a.Config.StartJoinAddrs,
		Tags:           map[string]string{"wal_addr": a.Config.BindAddr},
	})
	if err != nil {
		return err
	}
	a.membership = m
	return nil
}

// Append authorizes subject for produceAction, then appends to the WAL.
func (a *Agent) Append(subject string, term uint64, payload []byte) (uint64, error) {
	if err := a.authorizer.Authorize(subject, auth.ObjectWildcard, auth.ProduceAction); err != nil {
		return 0, err
	}
	return a.wal.Append(term, payload)
}

// Read authorizes subject for consumeAction, then opens a reader over the
// segment holding baseIndex.
func (a *Agent) Read(subject string, baseIndex uint64) (*segment.Segment, error) {
	if err := a.authorizer.Authorize(subject, auth.ObjectWildcard, auth.ConsumeAction); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return a.wal.OpenReader(baseIndex)
}

// Shutdown stops membership and closes the WAL exactly once, regardless of
// how many times it's called.
func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()

	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{}
	if a.membership != nil {
		shutdown = append(shutdown, a.membership.Leave)
	}
	shutdown = append(shutdown, a.wal.Close)

	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
