package simulate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/okian/siege/internal/adapters/http/api"
	"github.com/okian/siege/internal/adapters/http/ws"
	service "github.com/okian/siege/internal/app"
	"github.com/okian/siege/internal/config"
)

// localService is an in-process service with memory adapters behind a
// loopback HTTP server.
type localService struct {
	URL string
	svc *service.Service
	srv *httptest.Server
}

func startLocal(ctx context.Context, cfg *config.Config) (*localService, error) {
	hub := ws.NewHub()
	svc := service.New(cfg, service.WithMessenger(hub))
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc,
		api.WithHub(hub),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return &localService{URL: srv.URL, svc: svc, srv: srv}, nil
}

// Close stops the HTTP server, then the service.
func (l *localService) Close(ctx context.Context) {
	l.srv.Close()
	l.svc.Stop(context.WithoutCancel(ctx))
}
