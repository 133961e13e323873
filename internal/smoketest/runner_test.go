package smoketest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/roster/internal/adapters/http/api"
	"github.com/okian/roster/internal/adapters/repository"
	"github.com/okian/roster/internal/adapters/webhook"
	service "github.com/okian/roster/internal/app"
	"github.com/okian/roster/internal/smoketest"
	. "github.com/smartystreets/goconvey/convey"
)

// startService runs the full stack behind an httptest server.
func startService(t *testing.T, token string) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(ctx, filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	fanout := webhook.NewFanout(store, webhook.StaticToken(token), webhook.WithTimeout(2*time.Second))
	svc := service.New(store, service.WithDispatcher(fanout), service.WithWorkerCount(2))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
		_ = store.Close()
	})
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running service sending a bearer token", t, func() {
		srv := startService(t, "integration-token")
		config := &smoketest.Config{
			BaseURL:  srv.URL,
			SinkAddr: "127.0.0.1:0",
			Students: 5,
			Workers:  2,
			Timeout:  5 * time.Second,
			Settle:   5 * time.Second,
		}

		Convey("When the sink expects the same token", func() {
			config.Token = "integration-token"
			stats, err := smoketest.Run(context.Background(), config)

			Convey("Then every student yields one CREATE and one UPDATE", func() {
				So(err, ShouldBeNil)
				So(stats.StudentsCreated, ShouldEqual, 5)
				So(stats.StudentsUpdated, ShouldEqual, 5)
				So(stats.CreatesReceived, ShouldEqual, 5)
				So(stats.UpdatesReceived, ShouldEqual, 5)
				So(stats.Unauthorized, ShouldEqual, 0)
			})
		})

		Convey("When the sink expects another token", func() {
			config.Token = "other"
			config.Students = 1
			config.Settle = time.Second
			stats, err := smoketest.Run(context.Background(), config)

			Convey("Then the run reports missing deliveries", func() {
				So(errors.Is(err, smoketest.ErrMissingDelivery), ShouldBeTrue)
				So(stats.Unauthorized, ShouldBeGreaterThan, 0)
			})
		})
	})
}
