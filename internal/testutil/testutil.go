package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dom/accounts/internal/api"
	"github.com/dom/accounts/internal/auth"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/logger"
	"github.com/dom/accounts/internal/repository"
	repoMongo "github.com/dom/accounts/internal/repository/mongodb"
	repoPostgres "github.com/dom/accounts/internal/repository/postgres"
	"github.com/dom/accounts/internal/service"
	"github.com/testcontainers/testcontainers-go"
	tcMongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB starts a PostgreSQL container and migrates the schema
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_accounts"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	testDB := &TestDB{Container: container}
	t.Cleanup(testDB.Cleanup)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	testDB.DSN = dsn

	db, err := repoPostgres.NewConnection(dsn, gormLogger.Silent)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	testDB.DB = db

	if err := repoPostgres.NewUserRepository(db).Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	if err := tdb.DB.Exec("TRUNCATE TABLE users CASCADE").Error; err != nil {
		t.Fatalf("failed to truncate users: %v", err)
	}
}

// TestMongo manages a testcontainers MongoDB instance
type TestMongo struct {
	Container testcontainers.Container
	Client    *mongo.Client
	DB        *mongo.Database
}

// NewTestMongo starts a MongoDB container and creates the indexes
func NewTestMongo(t *testing.T) *TestMongo {
	t.Helper()

	ctx := context.Background()

	container, err := tcMongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start mongodb container: %v", err)
	}

	tm := &TestMongo{Container: container}
	t.Cleanup(tm.Cleanup)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	client, err := repoMongo.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("failed to connect to mongodb: %v", err)
	}
	tm.Client = client
	tm.DB = client.Database("test_accounts")

	if err := repoMongo.NewUserRepository(tm.DB).Migrate(ctx); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}

	return tm
}

func (tm *TestMongo) Cleanup() {
	ctx := context.Background()
	if tm.Client != nil {
		tm.Client.Disconnect(ctx)
	}
	if tm.Container != nil {
		tm.Container.Terminate(ctx)
	}
}

// Truncate removes every user document, keeping the indexes
func (tm *TestMongo) Truncate(t *testing.T) {
	t.Helper()

	if _, err := tm.DB.Collection("users").DeleteMany(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("failed to clear users: %v", err)
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Env:             config.EnvTest,
		Port:            "0",
		APIBase:         "/api/v1/users",
		ShutdownTimeout: 5 * time.Second,
		Store:           config.StorePostgres,
		Auth: config.AuthConfig{
			AccessTokenSecret:             "test-access-secret-for-testing-only",
			AccessTokenTTL:                15 * time.Minute,
			RefreshTokenSecret:            "test-refresh-secret-for-testing-only",
			RefreshTokenTTL:               24 * time.Hour,
			BcryptCost:                    bcrypt.MinCost,
			RevokeSessionOnPasswordChange: true,
		},
		Cookie: config.CookieConfig{
			Secure:   false,
			SameSite: "lax",
		},
		MaxUploadBytes: 1 << 20,
	}
}

// NewTestIssuer builds a token issuer from cfg
func NewTestIssuer(t *testing.T, cfg *config.Config) *auth.TokenIssuer {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	return issuer
}

// NewTestServices wires services over the given store with an in-memory
// blob store and a no-op publisher
func NewTestServices(t *testing.T, users repository.UserRepository, cfg *config.Config) (*service.Services, *MemoryBlobStore) {
	t.Helper()

	blobs := NewMemoryBlobStore()
	repos := &repository.Repositories{User: users, Blobs: blobs}
	services := service.NewServices(
		repos,
		NewTestIssuer(t, cfg),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		events.Noop{},
		cfg,
		logger.Discard(),
	)
	return services, blobs
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Repos    *repository.Repositories
	Blobs    *MemoryBlobStore
	Services *service.Services
	Hub      *events.Hub
	Config   *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()
	cfg.UploadDir = t.TempDir()
	log := logger.Discard()

	blobs := NewMemoryBlobStore()
	repos := repoPostgres.NewRepositories(testDB.DB, blobs)

	hub := events.NewHub(log)
	go hub.Run()

	services := service.NewServices(
		repos,
		NewTestIssuer(t, cfg),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		hub,
		cfg,
		log,
	)
	router := api.NewRouter(services, hub, cfg, log, nil)

	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return &TestServer{
		Server:   server,
		DB:       testDB,
		Repos:    repos,
		Blobs:    blobs,
		Services: services,
		Hub:      hub,
		Config:   cfg,
	}
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s%s%s", ts.Server.URL, ts.Config.APIBase, path)
}

// WebSocketURL returns the session events endpoint
func (ts *TestServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(ts.APIURL("/sessionEvents"), "http")
}
