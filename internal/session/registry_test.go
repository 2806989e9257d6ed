package session

import (
	"strings"
	"testing"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) Registry {
	t.Helper()
	return NewRegistry("test-salt", zaptest.NewLogger(t))
}

func TestCreateAndResolve(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Create("0xabc123", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.Token)

	resolved, err := reg.Resolve(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resolved.ID)
}

func TestWalletNeverStoredInClear(t *testing.T) {
	reg := newTestRegistry(t)

	wallet := "0xDEADBEEFCAFE"
	sess, err := reg.Create(wallet, time.Hour)
	require.NoError(t, err)

	assert.NotContains(t, sess.WalletHash, wallet)
	assert.NotContains(t, strings.ToLower(sess.WalletHash), strings.ToLower(wallet))
	assert.Len(t, sess.WalletHash, 64, "hex encoded SHA3-256")
	assert.NotEqual(t, wallet, sess.Token)
}

func TestSameWalletDistinctSessions(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Create("0xabc", time.Hour)
	require.NoError(t, err)
	b, err := reg.Create("0xabc", time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Token, b.Token)
	// same wallet, same salt: the hash matches, the identities do not
	assert.Equal(t, a.WalletHash, b.WalletHash)
}

func TestSaltChangesHash(t *testing.T) {
	regA := NewRegistry("salt-a", zaptest.NewLogger(t))
	regB := NewRegistry("salt-b", zaptest.NewLogger(t))

	a, err := regA.Create("0xabc", time.Hour)
	require.NoError(t, err)
	b, err := regB.Create("0xabc", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.WalletHash, b.WalletHash)
}

func TestExpiredSessionRejected(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Create("0xabc", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = reg.Resolve(sess.Token)
	assert.ErrorIs(t, err, model.ErrSessionExpired)

	// a second resolve finds it already dropped
	_, err = reg.Resolve(sess.Token)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRevoke(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Create("0xabc", time.Hour)
	require.NoError(t, err)
	require.NoError(t, reg.Revoke(sess.Token))

	_, err = reg.Resolve(sess.Token)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.ErrorIs(t, reg.Revoke(sess.Token), model.ErrSessionNotFound)
}

func TestExtend(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Create("0xabc", time.Minute)
	require.NoError(t, err)
	before := sess.ExpiresAt

	extended, err := reg.Extend(sess.Token, 2*time.Hour)
	require.NoError(t, err)
	assert.True(t, extended.ExpiresAt.After(before))

	_, err = reg.Extend("no-such-token", time.Hour)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestCleanupExpired(t *testing.T) {
	reg := newTestRegistry(t)

	live, err := reg.Create("0xlive", time.Hour)
	require.NoError(t, err)
	_, err = reg.Create("0xdead", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, reg.CleanupExpired())
	assert.Equal(t, 0, reg.CleanupExpired())

	_, err = reg.Resolve(live.Token)
	assert.NoError(t, err)
}

func TestResolveTouchesActivity(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Create("0xabc", time.Hour)
	require.NoError(t, err)
	first := sess.LastActivity
	time.Sleep(2 * time.Millisecond)

	resolved, err := reg.Resolve(sess.Token)
	require.NoError(t, err)
	assert.True(t, resolved.LastActivity.After(first))
}
