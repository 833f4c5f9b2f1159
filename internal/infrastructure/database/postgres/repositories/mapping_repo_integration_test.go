//go:build integration

// Package repositories_test runs the mapping repository against a real
// PostgreSQL 16 container. Requires Docker.
package repositories_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
)

// startPostgres launches a PostgreSQL 16 container, applies the embedded
// migrations and returns its config.
func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "bommesh_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Enabled:  true,
		Host:     host,
		Port:     p,
		User:     "test",
		Password: "test",
		DBName:   "bommesh_test",
		SSLMode:  "disable",
	}
	require.NoError(t, postgres.RunMigrations(cfg.DSN()))
	return cfg
}

func TestMigrations_UpDownUp(t *testing.T) {
	cfg := startPostgres(t)

	version, dirty, err := postgres.MigrationStatus(cfg.DSN())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	require.NoError(t, postgres.RollbackMigration(cfg.DSN(), 1))
	version, _, err = postgres.MigrationStatus(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, postgres.RunMigrations(cfg.DSN()))
	require.NoError(t, postgres.RunMigrations(cfg.DSN()), "re-running is a no-op")
}

func TestMappingRepository_RoundTrip(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	conn, err := postgres.NewConnection(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.RunMigrations())

	repo := repositories.NewPostgresMappingRepo(conn, logging.NewNopLogger())

	started := time.Now().UTC().Truncate(time.Millisecond)
	report := &matching.Report{
		RunID:      uuid.New(),
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Components: []matching.ScopeResult{{
			Scope:            matching.Scope{Kind: matching.ScopeComponent, ID: "C1", SourceID: "组件图1.pdf"},
			Mapping:          matching.MatchMapping{"01.09.2549": {"mesh_001", "mesh_004"}},
			TotalBOM:         4,
			TotalMeshParts:   6,
			MatchedBOMCount:  1,
			CodeMatchedCount: 1,
			MatchingRate:     0.25,
		}},
	}
	report.Summarize()

	require.NoError(t, repo.Save(ctx, report))
	err = repo.Save(ctx, report)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict), "%v", err)

	got, err := repo.FindByRunID(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Components[0].Mapping, got.Components[0].Mapping)
	assert.Equal(t, report.Summary, got.Summary)

	_, err = repo.FindByRunID(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRunNotFound))

	list, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, report.RunID, list[0].RunID)

	pool, err := pgxpool.New(ctx, cfg.DSN())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var scopes int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM matching_scopes WHERE run_id = $1", report.RunID).Scan(&scopes))
	assert.Equal(t, 1, scopes)

	var meshes int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT jsonb_array_length(mapping->'01.09.2549') FROM matching_scopes WHERE run_id = $1",
		report.RunID).Scan(&meshes))
	assert.Equal(t, 2, meshes)
}
