package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttaaoo/raftlog/internal/auth"
)

func TestDefaultPolicyPermitsRoot(t *testing.T) {
	a, err := auth.NewDefault()
	require.NoError(t, err)

	require.NoError(t, a.Authorize("root", auth.ObjectWildcard, auth.ProduceAction))
	require.NoError(t, a.Authorize("root", auth.ObjectWildcard, auth.ConsumeAction))
}

func TestDefaultPolicyDeniesUnknownSubject(t *testing.T) {
	a, err := auth.NewDefault()
	require.NoError(t, err)

	err = a.Authorize("nobody", auth.ObjectWildcard, auth.ProduceAction)
	require.Error(t, err)
}
