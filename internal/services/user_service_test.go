package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/taskpulse/internal/database/testutil"
	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

func TestUserServiceCreateAndAuthenticate(t *testing.T) {
	db := testutil.Open(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateUserInput{
		Username:    "ada",
		Email:       "Ada@Example.com",
		Password:    "correct horse",
		DisplayName: " Ada Lovelace ",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "Ada Lovelace", user.DisplayName)
	require.True(t, user.IsActive)
	require.NotEqual(t, "correct horse", user.Password)

	byName, err := svc.Authenticate(ctx, "ada", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)
	require.NotNil(t, byName.LastLoginAt)

	byEmail, err := svc.Authenticate(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	_, err = svc.Authenticate(ctx, "ada", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServiceRejectsDuplicates(t *testing.T) {
	db := testutil.Open(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, CreateUserInput{Username: "ada", Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateUserInput{Username: "ada", Email: "other@example.com", Password: "secret"})
	require.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Create(ctx, CreateUserInput{Username: "", Email: "x@example.com", Password: "secret"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestUserServiceInactiveUserCannotSignIn(t *testing.T) {
	db := testutil.Open(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateUserInput{Username: "bob", Email: "bob@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, user.ID, false))

	_, err = svc.Authenticate(ctx, "bob", "secret")
	require.ErrorIs(t, err, ErrUserInactive)

	require.ErrorIs(t, svc.SetActive(ctx, "missing", true), ErrUserNotFound)
}

func TestUserServiceUpdateProfile(t *testing.T) {
	db := testutil.Open(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateUserInput{Username: "cy", Email: "cy@example.com", Password: "secret"})
	require.NoError(t, err)

	name := "Cyrus"
	updated, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{DisplayName: &name})
	require.NoError(t, err)
	require.Equal(t, "Cyrus", updated.DisplayName)

	_, err = svc.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}
