package apperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindInvalidToken, "referral token is not valid")
	require.Equal(t, KindInvalidToken, KindOf(err))

	wrapped := errors.Wrap(err, "consume")
	require.Equal(t, KindInvalidToken, KindOf(wrapped))

	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(KindUpstream, nil, "lookup"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstream, cause, "mapping store lookup")
	require.ErrorIs(t, err, cause)
	require.True(t, IsKind(err, KindUpstream))
	require.Contains(t, err.Error(), "mapping store lookup")
}
