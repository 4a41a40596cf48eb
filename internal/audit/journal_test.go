package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/hradmin/internal/credstore"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/hrtest"
	"github.com/felixgeelhaar/hradmin/internal/session"
)

func newJournal(t *testing.T, cfg Config) *Journal {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	cfg.Enabled = true
	j := NewJournal(cfg)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := newJournal(t, Config{Command: "hradmin auth login"})

	if err := j.Record(NewEvent(EventLoginFailed, "login failed").WithUser("admin").WithError(errors.New("Invalid credentials"))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(NewEvent(EventLogin, "signed in").WithUser("admin").WithData("roles", []string{"Admin"})); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventLoginFailed || events[0].Level != "warning" || events[0].Error != "Invalid credentials" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Command != "hradmin auth login" {
		t.Errorf("expected command to be stamped, got %q", events[1].Command)
	}
	if events[0].Invocation == "" || events[0].Invocation != events[1].Invocation {
		t.Errorf("events of one run should share an invocation: %q vs %q", events[0].Invocation, events[1].Invocation)
	}

	last, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(last) != 1 || last[0].Type != EventLogin {
		t.Errorf("expected only the newest event, got %+v", last)
	}

	info, err := os.Stat(j.Path())
	if err != nil {
		t.Fatalf("stat journal: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("journal mode = %#o, want 0600", info.Mode().Perm())
	}
}

func TestDisabledJournalWritesNothing(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(Config{Dir: dir})

	if err := j.Record(NewEvent(EventLogout, "signed out")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := os.Stat(j.Path()); !os.IsNotExist(err) {
		t.Errorf("disabled journal created %s", j.Path())
	}
	events, err := j.Recent(10)
	if err != nil || len(events) != 0 {
		t.Errorf("expected no events, got %d (%v)", len(events), err)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(t, Config{Dir: dir, MaxFileSize: 200, MaxFiles: 2})

	for i := 0; i < 20; i++ {
		if err := j.Record(NewEvent(EventAccessDenied, "permission denied").WithData("permission", "user:delete")); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rotated) != 2 {
		t.Errorf("expected 2 rotated files kept, got %d", len(rotated))
	}

	events, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) == 0 || len(events) >= 20 {
		t.Errorf("expected the oldest events to be dropped, got %d", len(events))
	}
}

func TestRecentSkipsTornLines(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(t, Config{Dir: dir})
	if err := j.Record(NewEvent(EventLogout, "signed out")); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"id":"x","type":"log`)
	_ = f.Close()

	events, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected the torn line to be skipped, got %d events", len(events))
	}
}

func types(events []*Event) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = string(e.Type)
	}
	return strings.Join(names, ",")
}

func TestWatchRecordsSessionTransitions(t *testing.T) {
	srv := hrtest.NewServer()
	defer srv.Close()
	ctx := context.Background()

	dir := t.TempDir()
	store := credstore.NewMemoryStore("")
	client := hrapi.NewClient(srv.URL())
	sess := session.New(client, store)
	client.SetCredentialSource(hrapi.CredentialFunc(sess.Credential))

	j := newJournal(t, Config{Dir: dir})
	stop := j.Watch(sess)

	sess.Init(ctx)
	if res := sess.Login(ctx, hrapi.Credentials{Username: hrtest.AdminUser, Password: hrtest.AdminPassword}); !res.Success {
		t.Fatalf("login failed: %s", res.Error)
	}
	first := "Sys"
	if res := sess.UpdateProfile(ctx, hrapi.ProfileUpdate{FirstName: &first}); !res.Success {
		t.Fatalf("update failed: %s", res.Error)
	}
	sess.Logout(ctx)
	stop()

	events, err := j.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := types(events); got != "login,profile_updated,logout" {
		t.Errorf("events = %s", got)
	}
	if events[0].User != hrtest.AdminUser {
		t.Errorf("login event user = %q", events[0].User)
	}

	// A second run restores the credential, then a revoked one is rejected.
	token, err := srv.IssueToken(hrtest.EmployeeUser)
	if err != nil {
		t.Fatal(err)
	}
	restored := session.New(client, credstore.NewMemoryStore(token))
	client.SetCredentialSource(hrapi.CredentialFunc(restored.Credential))
	stop = j.Watch(restored)
	restored.Init(ctx)
	stop()

	srv.DeleteUser(hrtest.EmployeeUser)
	rejected := session.New(client, credstore.NewMemoryStore(token))
	client.SetCredentialSource(hrapi.CredentialFunc(rejected.Credential))
	stop = j.Watch(rejected)
	rejected.Init(ctx)
	stop()

	events, err = j.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := types(events); got != "session_restored,credential_rejected" {
		t.Errorf("events = %s", got)
	}
}
