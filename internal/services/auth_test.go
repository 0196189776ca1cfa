package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/repos"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

func newTestAuthService(t *testing.T) AuthService {
	t.Helper()
	gdb := openTestDB(t)
	log := logger.Nop()
	return NewAuthService(
		gdb,
		log,
		repos.NewUserRepo(gdb, log),
		repos.NewUserTokenRepo(gdb, log),
		nil,
		nil,
		"test-secret",
		time.Hour,
		24*time.Hour,
	)
}

func registerTestUser(t *testing.T, as AuthService) {
	t.Helper()
	err := as.RegisterUser(context.Background(), &types.User{
		Email:     "  Doctor@Example.com ",
		Password:  "correct-horse",
		FirstName: "gregory",
		LastName:  "house",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
}

func TestRegisterUser(t *testing.T) {
	as := newTestAuthService(t)
	registerTestUser(t, as)

	err := as.RegisterUser(context.Background(), &types.User{
		Email: "doctor@example.com", Password: "another-pass", FirstName: "A", LastName: "B",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email error = %v, want ErrEmailTaken", err)
	}

	err = as.RegisterUser(context.Background(), &types.User{
		Email: "new@example.com", Password: "short", FirstName: "A", LastName: "B",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("short password error = %v, want ErrValidation", err)
	}
}

func TestLoginAndTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	as := newTestAuthService(t)
	registerTestUser(t, as)

	if _, _, err := as.Login(ctx, "doctor@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := as.Login(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v, want ErrInvalidCredentials", err)
	}

	access, refresh, err := as.Login(ctx, "DOCTOR@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	authed, err := as.SetContextFromToken(ctx, access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(authed)
	if rd == nil || rd.TokenString != access || rd.UserID == uuid.Nil {
		t.Fatalf("request data not populated: %+v", rd)
	}

	if _, err := as.SetContextFromToken(ctx, "not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage token error = %v, want ErrUnauthorized", err)
	}

	newAccess, newRefresh, err := as.Refresh(ctx, refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if newRefresh == refresh {
		t.Fatalf("refresh token was not rotated")
	}
	if _, _, err := as.Refresh(ctx, refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reused refresh token error = %v, want ErrUnauthorized", err)
	}
	if _, err := as.SetContextFromToken(ctx, access); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rotated access token error = %v, want ErrUnauthorized", err)
	}

	authed, err = as.SetContextFromToken(ctx, newAccess)
	if err != nil {
		t.Fatalf("SetContextFromToken after refresh: %v", err)
	}
	if err := as.Logout(authed); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := as.SetContextFromToken(ctx, newAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("logged out token error = %v, want ErrUnauthorized", err)
	}
}

func TestLogoutRequiresSession(t *testing.T) {
	as := newTestAuthService(t)
	if err := as.Logout(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Logout error = %v, want ErrUnauthorized", err)
	}
}
