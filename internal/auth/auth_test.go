package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/rxflow-go/internal/client"
)

type fakeBackend struct {
	mu       sync.Mutex
	resp     *client.LoginResponse
	err      error
	token    string
	handlers []func()
}

func (f *fakeBackend) Login(ctx context.Context, username, password string) (*client.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeBackend) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeBackend) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeBackend) OnUnauthorized(fn func()) {
	f.handlers = append(f.handlers, fn)
}

func (f *fakeBackend) reject() {
	f.SetToken("")
	for _, fn := range f.handlers {
		fn()
	}
}

func newTestSession(t *testing.T, backend *fakeBackend) (*Session, string) {
	t.Helper()

	dir := t.TempDir()
	logger, _ := logtest.NewNullLogger()
	return NewSession(backend, dir, logrus.NewEntry(logger)), dir
}

func TestSession_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("stores token and persists", func(t *testing.T) {
		backend := &fakeBackend{resp: &client.LoginResponse{Token: "tok", Role: "PHARMACIST"}}
		s, dir := newTestSession(t, backend)

		require.NoError(t, s.Login(ctx, "jdoe", "pw"))

		assert.True(t, s.IsAuthenticated())
		assert.Equal(t, "PHARMACIST", s.Role())
		assert.Equal(t, "jdoe", s.User().Username)
		assert.Equal(t, "tok", backend.Token())
		assert.True(t, s.HasSavedSession())

		info, err := os.Stat(filepath.Join(dir, SessionFileName))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("validates input", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeBackend{})

		err := s.Login(ctx, "", "pw")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Username")

		err = s.Login(ctx, "jdoe", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Password")
		assert.False(t, s.IsAuthenticated())
	})

	t.Run("backend rejection", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeBackend{err: client.ErrUnauthorized})

		err := s.Login(ctx, "jdoe", "bad")
		assert.ErrorIs(t, err, client.ErrUnauthorized)
		assert.False(t, s.IsAuthenticated())
	})

	t.Run("missing token", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeBackend{resp: &client.LoginResponse{Role: "ADMIN"}})
		assert.ErrorIs(t, s.Login(ctx, "jdoe", "pw"), ErrNoToken)
	})
}

func TestSession_Restore(t *testing.T) {
	backend := &fakeBackend{resp: &client.LoginResponse{Token: "tok", Role: "TECH"}}
	first, dir := newTestSession(t, backend)
	require.NoError(t, first.Login(context.Background(), "jdoe", "pw"))

	restoredBackend := &fakeBackend{}
	second := NewSession(restoredBackend, dir, nil)

	ok, err := second.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "TECH", second.Role())
	assert.Equal(t, "tok", restoredBackend.Token())

	t.Run("nothing saved", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeBackend{})
		ok, err := s.Restore()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt file", func(t *testing.T) {
		s, dir := newTestSession(t, &fakeBackend{})
		require.NoError(t, os.WriteFile(filepath.Join(dir, SessionFileName), []byte("{"), 0600))

		ok, err := s.Restore()
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestSession_Logout(t *testing.T) {
	backend := &fakeBackend{resp: &client.LoginResponse{Token: "tok"}}
	s, _ := newTestSession(t, backend)
	require.NoError(t, s.Login(context.Background(), "jdoe", "pw"))

	s.Logout()

	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Role())
	assert.Empty(t, backend.Token())
	assert.False(t, s.HasSavedSession())
}

func TestSession_InvalidatedByBackend(t *testing.T) {
	backend := &fakeBackend{resp: &client.LoginResponse{Token: "tok"}}
	s, _ := newTestSession(t, backend)

	var fired int
	s.OnInvalidated(func() { fired++ })

	backend.reject()
	assert.Equal(t, 0, fired, "no listener call while logged out")

	require.NoError(t, s.Login(context.Background(), "jdoe", "pw"))
	backend.reject()

	assert.Equal(t, 1, fired)
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.HasSavedSession())
}

func TestSession_WithoutDataDir(t *testing.T) {
	backend := &fakeBackend{resp: &client.LoginResponse{Token: "tok"}}
	s := NewSession(backend, "", nil)

	require.NoError(t, s.Login(context.Background(), "jdoe", "pw"))
	assert.False(t, s.HasSavedSession())

	ok, err := s.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
}
