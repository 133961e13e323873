package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/roster/internal/adapters/http/api"
	service "github.com/okian/roster/internal/app"
	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
}

type mockDependencies struct {
	students  map[int64]model.Student
	webhooks  map[int64]model.Subscriber
	lastPatch model.Patch
	lastURL   *string
	lastFlag  *bool
	createErr error
	stats     map[string]interface{}
}

func newMock() *mockDependencies {
	return &mockDependencies{
		students: map[int64]model.Student{1: {ID: 1, Name: "Ada", Email: "ada@example.com"}},
		webhooks: map[int64]model.Subscriber{7: {ID: 7, URL: "http://hook.example", Active: true}},
		stats:    map[string]interface{}{"started": true},
	}
}

func (m *mockDependencies) CreateStudent(_ context.Context, in model.Student) (model.Student, error) {
	if m.createErr != nil {
		return model.Student{}, m.createErr
	}
	in.ID = 2
	m.students[in.ID] = in
	return in, nil
}

func (m *mockDependencies) GetStudent(_ context.Context, id int64) (model.Student, error) {
	st, ok := m.students[id]
	if !ok {
		return model.Student{}, fmt.Errorf("get student: %w", service.ErrNotFound)
	}
	return st, nil
}

func (m *mockDependencies) ListStudents(context.Context) ([]model.Student, error) {
	out := make([]model.Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	return out, nil
}

func (m *mockDependencies) UpdateStudent(ctx context.Context, id int64, p model.Patch) (model.Student, error) {
	m.lastPatch = p
	return m.GetStudent(ctx, id)
}

func (m *mockDependencies) DeleteStudent(_ context.Context, id int64) error {
	if _, ok := m.students[id]; !ok {
		return fmt.Errorf("load student: %w", service.ErrNotFound)
	}
	delete(m.students, id)
	return nil
}

func (m *mockDependencies) ListWebhooks(context.Context) ([]model.Subscriber, error) {
	out := make([]model.Subscriber, 0, len(m.webhooks))
	for _, s := range m.webhooks {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockDependencies) CreateWebhook(_ context.Context, url string) (model.Subscriber, error) {
	if url == "" {
		return model.Subscriber{}, fmt.Errorf("%w: URL is required", service.ErrValidation)
	}
	sub := model.Subscriber{ID: 8, URL: url, Active: true}
	m.webhooks[sub.ID] = sub
	return sub, nil
}

func (m *mockDependencies) UpdateWebhook(_ context.Context, id int64, url *string, active *bool) (model.Subscriber, error) {
	m.lastURL, m.lastFlag = url, active
	sub, ok := m.webhooks[id]
	if !ok {
		return model.Subscriber{}, fmt.Errorf("update webhook: %w", service.ErrNotFound)
	}
	if active != nil {
		sub.Active = *active
	}
	return sub, nil
}

func (m *mockDependencies) DeleteWebhook(_ context.Context, id int64) error {
	if _, ok := m.webhooks[id]; !ok {
		return fmt.Errorf("delete webhook: %w", service.ErrNotFound)
	}
	delete(m.webhooks, id)
	return nil
}

func (m *mockDependencies) GetStats() map[string]interface{} { return m.stats }

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMock())

		Convey("Then health serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStudentsHandler(t *testing.T) {
	Convey("Given the students routes", t, func() {
		deps := newMock()
		mux := newMux(deps)

		Convey("When listing", func() {
			w := do(mux, http.MethodGet, "/api/students", "")

			Convey("Then the students are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out []model.Student
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 1)
			})
		})

		Convey("When creating", func() {
			w := do(mux, http.MethodPost, "/api/students",
				`{"name":"Grace","email":"grace@example.com","marks":[{"subject":"Math","marks":90}]}`)

			Convey("Then 201 with the stored record", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var out model.Student
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.ID, ShouldEqual, 2)
				So(*out.Marks[0].Marks, ShouldEqual, 90)
			})
		})

		Convey("When creating with malformed JSON", func() {
			w := do(mux, http.MethodPost, "/api/students", `{"name":`)

			Convey("Then 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			})
		})

		Convey("When the service reports validation and conflict errors", func() {
			deps.createErr = fmt.Errorf("%w: Name is required", service.ErrValidation)
			invalid := do(mux, http.MethodPost, "/api/students", `{}`)
			deps.createErr = fmt.Errorf("%w: Email taken", service.ErrConflict)
			conflict := do(mux, http.MethodPost, "/api/students", `{}`)
			deps.createErr = fmt.Errorf("disk full")
			internal := do(mux, http.MethodPost, "/api/students", `{}`)

			Convey("Then they map to 400, 409 and 500", func() {
				So(invalid.Code, ShouldEqual, http.StatusBadRequest)
				So(invalid.Body.String(), ShouldContainSubstring, "Name is required")
				So(conflict.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(conflict), ShouldEqual, "conflict")
				So(internal.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When fetching by id", func() {
			found := do(mux, http.MethodGet, "/api/students/1", "")
			missing := do(mux, http.MethodGet, "/api/students/99", "")
			bad := do(mux, http.MethodGet, "/api/students/abc", "")

			Convey("Then found, missing and malformed ids are distinguished", func() {
				So(found.Code, ShouldEqual, http.StatusOK)
				So(missing.Code, ShouldEqual, http.StatusNotFound)
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When updating with a partial body", func() {
			w := do(mux, http.MethodPut, "/api/students/1",
				`{"universityend_date":"2026-06-30","phone":null,"marks":[{"subject":"Art","marks":5}],"exams":null,"unknown":1}`)

			Convey("Then only the sent fields are asserted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				p := deps.lastPatch
				So(p.Has(model.FieldUniversityEndDate), ShouldBeTrue)
				So(*p.Scalars[model.FieldUniversityEndDate], ShouldEqual, "2026-06-30")
				So(p.Has(model.FieldPhone), ShouldBeTrue)
				So(p.Scalars[model.FieldPhone], ShouldBeNil)
				So(p.Has(model.FieldName), ShouldBeFalse)
				So(p.MarksSet, ShouldBeTrue)
				So(p.Marks, ShouldHaveLength, 1)
				So(p.ExamsSet, ShouldBeFalse)
			})
		})

		Convey("When updating with an empty exams list", func() {
			w := do(mux, http.MethodPut, "/api/students/1", `{"exams":[]}`)

			Convey("Then the exams are asserted as cleared", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastPatch.ExamsSet, ShouldBeTrue)
				So(deps.lastPatch.Exams, ShouldBeEmpty)
			})
		})

		Convey("When updating a scalar with a non-string value", func() {
			w := do(mux, http.MethodPut, "/api/students/1", `{"name":42}`)

			Convey("Then 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When deleting", func() {
			first := do(mux, http.MethodDelete, "/api/students/1", "")
			second := do(mux, http.MethodDelete, "/api/students/1", "")

			Convey("Then the first succeeds and the second is not found", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(first.Body.String(), ShouldContainSubstring, "Student deleted successfully")
				So(second.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When using an unsupported method", func() {
			So(do(mux, http.MethodPatch, "/api/students", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestWebhooksHandler(t *testing.T) {
	Convey("Given the webhook routes", t, func() {
		deps := newMock()
		mux := newMux(deps)

		Convey("When registering without a url", func() {
			w := do(mux, http.MethodPost, "/api/webhooks", `{}`)

			Convey("Then 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "URL is required")
			})
		})

		Convey("When registering a url", func() {
			w := do(mux, http.MethodPost, "/api/webhooks", `{"url":"https://example.com/hook"}`)

			Convey("Then 201 with an active subscriber", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Body.String(), ShouldContainSubstring, `"isActive":true`)
			})
		})

		Convey("When deactivating with a numeric flag", func() {
			w := do(mux, http.MethodPut, "/api/webhooks/7", `{"isActive":0}`)

			Convey("Then the flag is decoded as false", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastURL, ShouldBeNil)
				So(deps.lastFlag, ShouldNotBeNil)
				So(*deps.lastFlag, ShouldBeFalse)
			})
		})

		Convey("When sending a non-boolean flag", func() {
			w := do(mux, http.MethodPut, "/api/webhooks/7", `{"isActive":"yes"}`)

			Convey("Then 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When touching an unknown webhook", func() {
			upd := do(mux, http.MethodPut, "/api/webhooks/99", `{"isActive":true}`)
			del := do(mux, http.MethodDelete, "/api/webhooks/99", "")

			Convey("Then 404", func() {
				So(upd.Code, ShouldEqual, http.StatusNotFound)
				So(del.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When deleting and listing", func() {
			del := do(mux, http.MethodDelete, "/api/webhooks/7", "")
			list := do(mux, http.MethodGet, "/api/webhooks", "")

			Convey("Then the subscriber is gone", func() {
				So(del.Code, ShouldEqual, http.StatusOK)
				So(list.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(list.Body.String()), ShouldEqual, "[]")
			})
		})
	})
}
