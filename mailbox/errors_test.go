package mailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAuthErrorMatchesNoAuthAndWrongPass(t *testing.T) {
	assert.True(t, isAuthError(errors.New("NOAUTH Authentication required.")))
	assert.True(t, isAuthError(errors.New("WRONGPASS invalid username-password pair or user is disabled.")))
	assert.False(t, isAuthError(nil))
	assert.False(t, isAuthError(errors.New("NOGROUP no such key or consumer group")))
}

func TestEnsureConnectedClassifiesRejectedCredentialsAsAuth(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	cfg := testConfig(t, mr)
	cfg.Password = "wrong-password"

	svc := NewMailboxService("bob", cfg)
	err := svc.ensureConnected(context.Background())
	require.Error(t, err)

	var mErr *Error
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, KindAuth, mErr.Kind)
}
