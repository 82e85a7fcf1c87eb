//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"starchart/internal/platform/store"
	"starchart/internal/services/catalog/domain"

	perr "starchart/internal/platform/errors"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openStore(t *testing.T, ctx context.Context, dsn string) Store {
	t.Helper()

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, ConnectRetries: 5},
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	s := NewPG().Bind(st.PG)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run must be a no-op
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	return s
}

func TestPGStoreContract_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := openStore(t, ctx, dsn)

	if err := s.CreateForge(ctx, domain.ForgeRecord{
		Hostname: "git.example.org", Kind: "gitea", BaseURL: "https://git.example.org",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateForge(ctx, domain.ForgeRecord{
		Hostname: "git.example.org", Kind: "gitea", BaseURL: "https://git.example.org",
	}); err != nil {
		t.Fatalf("duplicate register must succeed: %v", err)
	}

	rec := domain.RepositoryRecord{
		ForgeHost:   "git.example.org",
		ExternalID:  42,
		Name:        "starship",
		Owner:       "alice",
		Description: "a prompt",
		Topics:      []string{"shell", "rust"},
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := s.AddRepository(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Description = "renamed"
	if err := s.AddRepository(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.SearchRepositories(ctx, "starship", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Description != "renamed" {
		t.Fatalf("upsert did not replace: %+v", got)
	}
	if len(got[0].Topics) != 2 {
		t.Fatalf("topics round trip: %v", got[0].Topics)
	}

	if err := s.AddUser(ctx, domain.UserRecord{
		ForgeHost: "git.example.org", ExternalID: 7, Username: "alice",
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	if err := s.AddChallenge(ctx, domain.Challenge{
		Domain: "example.org", Token: "tok-123",
		IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		Status: domain.ChallengePending,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkChallenge(ctx, "example.org", domain.ChallengePending, domain.ChallengeVerified); err != nil {
		t.Fatal(err)
	}
	err = s.MarkChallenge(ctx, "example.org", domain.ChallengePending, domain.ChallengeFailed)
	if !perr.IsCode(err, perr.ErrorCodeInvalidTransition) {
		t.Fatalf("stale CAS = %v", err)
	}

	if err := s.SaveCursor(ctx, "git.example.org", "3"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCursor(ctx, "git.example.org", "4"); err != nil {
		t.Fatal(err)
	}
	pos, err := s.GetCursor(ctx, "git.example.org")
	if err != nil || pos != "4" {
		t.Fatalf("cursor = %q, %v", pos, err)
	}

	if err := s.DeleteForge(ctx, "git.example.org"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.SearchRepositories(ctx, "starship", 10); len(got) != 0 {
		t.Fatalf("cascade delete left rows: %+v", got)
	}
}
