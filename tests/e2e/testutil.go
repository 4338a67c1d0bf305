package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/api"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/graph"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/match"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/meeting"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger    *zap.Logger
	testPool      *storage.Pool
	testEdgeStore *graph.Neo4jEdgeStore
	testRedisURL  string
	testServer    *httptest.Server
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("matchd_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// buildServer wires the full engine against the container-backed stores,
// mirroring the production wiring in cmd/matchd.
func buildServer(t *testing.T) *httptest.Server {
	t.Helper()

	directory := identity.NewPostgresDirectory(testPool.DB())
	meetings := meeting.NewPostgresStore(testPool.DB())

	deduper, err := scan.NewRedisDeduper(testRedisURL, 72*time.Hour, testLogger)
	if err != nil {
		t.Fatalf("redis deduper: %v", err)
	}
	t.Cleanup(func() { deduper.Close() })

	tracker := graph.NewHotspotTracker(testEdgeStore, time.Minute, 5, testLogger)
	h := api.NewHandler(
		scan.NewDeduplicator(deduper, testLogger),
		graph.NewAggregator(testEdgeStore, tracker, testLogger),
		match.NewEngine(directory, testEdgeStore, testLogger),
		meeting.NewScheduler(meetings, directory, testLogger),
		directory,
		tracker,
		api.Options{},
		testLogger,
	)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends a JSON request to the test server and decodes the envelope.
func call(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, testServer.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
