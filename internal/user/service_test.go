package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"relo/internal/apperr"
	"relo/internal/auth"
)

func newTestService() *Service {
	tokens := auth.NewTokenService("secret", time.Hour, 24*time.Hour)
	return NewService(NewMemoryStore(), tokens).WithBcryptCost(bcrypt.MinCost)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	profile, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.DisplayName, "display name defaults to username")

	res, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, res.ID)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "bearer", res.TokenType)
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "bob", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, &RegisterRequest{Username: "bob", Password: "secret2"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Register(ctx, &RegisterRequest{Username: "carol", Password: "correct"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{Username: "carol", Password: "wrong"})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Register(ctx, &RegisterRequest{Username: "dave", Password: "password"})
	require.NoError(t, err)
	pair, err := svc.Login(ctx, &LoginRequest{Username: "dave", Password: "password"})
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.ID, next.ID)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized), "access token cannot be used to refresh")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	a, err := svc.Register(ctx, &RegisterRequest{Username: "erin", Password: "password", DisplayName: "Erin E"})
	require.NoError(t, err)
	b, err := svc.Register(ctx, &RegisterRequest{Username: "frank", Password: "password"})
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, Ref{ID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, "Erin E", got.DisplayName)

	_, err = svc.Resolve(ctx, Ref{ID: "00000000-0000-0000-0000-000000000000"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	many, err := svc.ResolveMany(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
	assert.Equal(t, "frank", many[b.ID].Username)
}

func TestSearchUsers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	for _, name := range []string{"zed", "zoe", "amy"} {
		_, err := svc.Register(ctx, &RegisterRequest{Username: name, Password: "password"})
		require.NoError(t, err)
	}

	got, err := svc.SearchUsers(ctx, "Z")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zed", got[0].Username)
}
