package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunivo/jobsync/app/backend"
	"github.com/tunivo/jobsync/app/store"
)

func TestSession_Defaults(t *testing.T) {
	s := New(store.NewMemoryKV(), nil)
	assert.Equal(t, DefaultEmail, s.Email())
	assert.Equal(t, DefaultPlan, s.Plan())
	assert.Equal(t, backend.Identity{Email: DefaultEmail, Plan: DefaultPlan}, s.Current())
}

func TestSession_Login(t *testing.T) {
	var reject atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if reject.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"email":"new@user.com","plan":"pro"}`))
	}))
	defer ts.Close()

	kv := store.NewMemoryKV()
	s := New(kv, backend.New(backend.Params{Origin: ts.URL}))

	id, err := s.Login(context.Background(), "new@user.com")
	require.NoError(t, err)
	assert.Equal(t, backend.Identity{Email: "new@user.com", Plan: "pro"}, id)
	assert.Equal(t, "new@user.com", s.Email())
	assert.Equal(t, "pro", s.Plan())

	reject.Store(true)
	_, err = s.Login(context.Background(), "other@user.com")
	var authErr *backend.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "new@user.com", s.Email(), "failed login keeps previous email")
	assert.Equal(t, "pro", s.Plan(), "failed login keeps previous plan")

	// identity survives a new session on the same slots
	s2 := New(kv, nil)
	assert.Equal(t, "new@user.com", s2.Email())
}

func TestSession_Logout(t *testing.T) {
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(store.EmailKey, "x@example.com"))
	require.NoError(t, kv.Set(store.PlanKey, "pro"))

	s := New(kv, nil)
	assert.Equal(t, "x@example.com", s.Email())
	require.NoError(t, s.Logout())
	assert.Equal(t, DefaultEmail, s.Email())
	assert.Equal(t, DefaultPlan, s.Plan())
}

func TestSession_LoginSaveError(t *testing.T) {
	s := New(brokenKV{}, authFunc(func(context.Context, string) (backend.Identity, error) {
		return backend.Identity{Email: "a@b.c", Plan: "pro"}, nil
	}))
	_, err := s.Login(context.Background(), "a@b.c")
	assert.EqualError(t, err, "can't save email: read-only")
	assert.Equal(t, DefaultEmail, s.Email())
}

type authFunc func(ctx context.Context, email string) (backend.Identity, error)

func (f authFunc) Login(ctx context.Context, email string) (backend.Identity, error) { return f(ctx, email) }

type brokenKV struct{}

func (brokenKV) Get(string) (string, bool, error) { return "", false, errors.New("read-only") }
func (brokenKV) Set(string, string) error          { return errors.New("read-only") }
func (brokenKV) Delete(string) error               { return errors.New("read-only") }
