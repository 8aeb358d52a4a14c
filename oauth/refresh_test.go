package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/moddeck/db"
	"github.com/onnwee/moddeck/testutil"
)

func TestStartRefresherOutsideWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertOAuthToken(ctx, dbx, "refresh-outside", "access123", "refresh456", time.Now().Add(time.Hour), "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refreshCalled := false
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	StartRefresher(runCtx, dbx, "refresh-outside", 50*time.Millisecond, 30*time.Minute, fn)
	<-runCtx.Done()

	if refreshCalled {
		t.Error("refresh should not run for a token expiring in 1 hour with a 30 minute window")
	}
}

func TestStartRefresherWithinWindow(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertOAuthToken(ctx, dbx, "refresh-within", "old-access", "old-refresh", time.Now().Add(5*time.Minute), "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refreshCalled := false
	newExpiry := time.Now().Add(2 * time.Hour)
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if refreshToken != "old-refresh" {
			t.Errorf("refresh called with token %q, want old-refresh", refreshToken)
		}
		refreshCalled = true
		return "new-access", "new-refresh", newExpiry, "scope2", nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	StartRefresher(runCtx, dbx, "refresh-within", 100*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(6 * time.Second)
	cancel()

	if !refreshCalled {
		t.Fatal("refresh should have been called for a token expiring within the window")
	}

	access, refresh, _, scope, err := db.GetOAuthToken(ctx, dbx, "refresh-within")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if access != "new-access" || refresh != "new-refresh" || scope != "scope2" {
		t.Errorf("stored token = %q/%q/%q, want new-access/new-refresh/scope2", access, refresh, scope)
	}
}

func TestStartRefresherKeepsOldTokenOnError(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertOAuthToken(ctx, dbx, "refresh-err", "old-access", "old-refresh", time.Now().Add(5*time.Minute), "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("refresh failed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	StartRefresher(runCtx, dbx, "refresh-err", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(6 * time.Second)
	cancel()

	access, _, _, _, err := db.GetOAuthToken(ctx, dbx, "refresh-err")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if access != "old-access" {
		t.Errorf("token should be untouched after a failed refresh, got %q", access)
	}
}

func TestStartRefresherSkipsWithoutRefreshToken(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertOAuthToken(ctx, dbx, "refresh-norefresh", "access123", "", time.Now().Add(5*time.Minute), "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	refreshCalled := false
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	StartRefresher(runCtx, dbx, "refresh-norefresh", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(3 * time.Second)
	cancel()

	if refreshCalled {
		t.Error("refresh should not run when refresh_token is empty")
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	dbx := testutil.SetupTestDB(t)

	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "access", "refresh", time.Now().Add(time.Hour), "scope", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, dbx, "refresh-cancel", time.Second, 15*time.Minute, fn)
	cancel()
	time.Sleep(50 * time.Millisecond)
}

func TestStartRefresherPreservesRefreshTokenAndScope(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertOAuthToken(ctx, dbx, "refresh-preserve", "old-access", "original-refresh", time.Now().Add(5*time.Minute), "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	// Twitch sometimes omits the refresh token and scope in the refresh
	// response; the original values must survive.
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "new-access", "", time.Now().Add(2 * time.Hour), "", nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	StartRefresher(runCtx, dbx, "refresh-preserve", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(6 * time.Second)
	cancel()

	_, refresh, _, scope, err := db.GetOAuthToken(ctx, dbx, "refresh-preserve")
	if err != nil {
		t.Fatalf("read back token: %v", err)
	}
	if refresh != "original-refresh" {
		t.Errorf("refresh token = %q, want original-refresh", refresh)
	}
	if scope != "scope1" {
		t.Errorf("scope = %q, want scope1", scope)
	}
}
