package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/db"
	"gamification/internal/db/dbtest"
	"gamification/internal/metrics"

	"gorm.io/gorm"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

type testEnv struct {
	ts       *httptest.Server
	conn     *gorm.DB
	fx       dbtest.Fixture
	provider auth.Provider
	cfg      config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	cfg := config.Default()
	cfg.MediaRoot = t.TempDir()
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}
	provider := auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer)
	srv := New(Deps{DB: conn, Config: cfg, Auth: provider, Metrics: metrics.New()})
	return testEnv{
		ts:       newTestServer(t, srv.Handler()),
		conn:     conn,
		fx:       dbtest.Fixture{Conn: conn},
		provider: provider,
		cfg:      cfg,
	}
}

func (e testEnv) token(t *testing.T, user db.User) string {
	t.Helper()
	token, err := e.provider.GenerateToken(auth.Identity{UserID: user.ID, IsStaff: user.IsStaff}, e.cfg.JWTTTL())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
