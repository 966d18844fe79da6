// Package auth authorizes produce/consume requests against a WAL using a
// casbin ACL model and policy. It knows nothing about segments or raft
// indices; it only answers "may subject do action on object".
package auth

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/rs/zerolog"
)

// The constants below match the values expected in the ACL policy file.
const (
	ObjectWildcard = "*"
	ProduceAction  = "produce"
	ConsumeAction  = "consume"
)

//go:embed model.conf
var defaultModel string

//go:embed policy.csv
var defaultPolicy string

// Authorizer decides whether a subject may perform an action on an object.
type Authorizer interface {
	Authorize(subject, object, action string) error
}

// Enforcer is a casbin-backed Authorizer. A zero value is not usable; build
// one with New or NewDefault.
type Enforcer struct {
	enforcer *casbin.Enforcer
	log      zerolog.Logger
}

// New builds an Authorizer from an ACL model file and policy file on disk.
func New(modelFile, policyFile string) (*Enforcer, error) {
	e, err := casbin.NewEnforcer(modelFile, policyFile)
	if err != nil {
		return nil, fmt.Errorf("auth: load enforcer: %w", err)
	}
	return &Enforcer{
		enforcer: e,
		log:      zerolog.New(os.Stderr).With().Str("component", "auth").Logger(),
	}, nil
}

// NewDefault builds an Authorizer from the model and policy embedded in the
// binary, so a daemon has a working ACL out of the box even when no
// ACLModelFile/ACLPolicyFile is configured. The embedded text is spilled to
// a temp directory because casbin's file adapter wants paths, not readers.
func NewDefault() (*Enforcer, error) {
	dir, err := os.MkdirTemp("", "raftlog-acl-*")
	if err != nil {
		return nil, fmt.Errorf("auth: stage embedded acl: %w", err)
	}
	modelPath := dir + "/model.conf"
	policyPath := dir + "/policy.csv"
	if err := os.WriteFile(modelPath, []byte(defaultModel), 0600); err != nil {
		return nil, fmt.Errorf("auth: stage embedded model: %w", err)
	}
	if err := os.WriteFile(policyPath, []byte(defaultPolicy), 0600); err != nil {
		return nil, fmt.Errorf("auth: stage embedded policy: %w", err)
	}
	return New(modelPath, policyPath)
}

// Authorize reports nil when the (subject, object, action) triple is
// permitted, and a descriptive error otherwise.
func (e *Enforcer) Authorize(subject, object, action string) error {
	ok, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return fmt.Errorf("auth: enforce: %w", err)
	}
	if !ok {
		e.log.Warn().Str("subject", subject).Str("object", object).Str("action", action).Msg("permission denied")
		return fmt.Errorf("auth: %s not permitted to %s on %s", subject, action, object)
	}
	return nil
}
