package smoketest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/roster/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func post(s *Sink, auth, body string) int {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w.Code
}

func TestSink(t *testing.T) {
	Convey("Given a sink expecting a bearer token", t, func() {
		sink := NewSink("tok", true)
		envelope := `{"event":"UPDATE","timestamp":"2026-10-16T09:00:00.000Z","data":{"id":3},"changes":{"universityend_date":"2030-06-30"}}`

		Convey("When a delivery carries the token", func() {
			code := post(sink, "Bearer tok", envelope)

			Convey("Then it is recorded", func() {
				So(code, ShouldEqual, http.StatusNoContent)
				So(sink.Count(EventUpdate), ShouldEqual, 1)
				got := sink.For(3)
				So(got, ShouldHaveLength, 1)
				So(got[0].Changes["universityend_date"], ShouldEqual, "2030-06-30")
			})
		})

		Convey("When a delivery carries a wrong or missing token", func() {
			wrong := post(sink, "Bearer nope", envelope)
			missing := post(sink, "", envelope)

			Convey("Then it is rejected and counted", func() {
				So(wrong, ShouldEqual, http.StatusUnauthorized)
				So(missing, ShouldEqual, http.StatusUnauthorized)
				So(sink.Unauthorized(), ShouldEqual, 2)
				So(sink.Count(EventUpdate), ShouldEqual, 0)
			})
		})

		Convey("When the same delivery arrives twice", func() {
			for i := 0; i < 2; i++ {
				req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(envelope))
				req.Header.Set("Authorization", "Bearer tok")
				req.Header.Set("X-Roster-Delivery", "d-1")
				sink.ServeHTTP(httptest.NewRecorder(), req)
			}

			Convey("Then the repeat is counted but not recorded", func() {
				So(sink.Count(EventUpdate), ShouldEqual, 1)
				So(sink.Duplicates(), ShouldEqual, 1)
			})
		})

		Convey("When the body is not an envelope", func() {
			So(post(sink, "Bearer tok", "{"), ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is not POST", func() {
			w := httptest.NewRecorder()
			sink.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When waiting for envelopes that never come", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
			defer cancel()

			Convey("Then the wait gives up with the context", func() {
				So(sink.WaitFor(ctx, EventCreate, 1), ShouldBeFalse)
			})
		})
	})

	Convey("Given a sink without a token", t, func() {
		sink := NewSink("", false)

		Convey("Then any credential is accepted", func() {
			So(post(sink, "", `{"event":"CREATE","data":{"id":1}}`), ShouldEqual, http.StatusNoContent)
			So(sink.WaitFor(context.Background(), EventCreate, 1), ShouldBeTrue)
		})
	})
}
