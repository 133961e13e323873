package notifier

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.InitWithWriter(io.Discard)
	m.Run()
}

type recorder struct {
	mu   sync.Mutex
	envs []event.Envelope
}

func (r *recorder) Dispatch(_ context.Context, env event.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func intp(v int) *int { return &v }

func student() model.Student {
	end := "2025-06-30"
	return model.Student{
		ID:                5,
		Name:              "Grace Hopper",
		Email:             "grace@example.com",
		UniversityEndDate: &end,
		Marks:             []model.Mark{{Subject: "Math", Marks: intp(88), MaxMarks: 100}},
		Exams: []model.Exam{
			{Name: "Midterm", Date: "2024-05-01", StartTime: "09:00", EndTime: "11:00", Room: "A1", Type: "written"},
		},
	}
}

func TestTrigger(t *testing.T) {
	Convey("Given a trigger with a fixed clock", t, func() {
		rec := &recorder{}
		at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
		trig := NewTrigger(rec, WithBuilder(event.NewBuilder(event.WithClock(func() time.Time { return at }))))
		ctx := context.Background()

		Convey("When a student is created", func() {
			trig.Created(ctx, student())

			Convey("Then exactly one CREATE envelope without changes is dispatched", func() {
				So(rec.envs, ShouldHaveLength, 1)
				env := rec.envs[0]
				So(env.Kind, ShouldEqual, event.Create)
				So(env.Changes, ShouldBeNil)
				So(env.Data.ID, ShouldEqual, 5)
				So(env.Timestamp.Equal(at), ShouldBeTrue)
			})
		})

		Convey("When an update asserts fields that did not change", func() {
			before := student()
			sent := trig.Updated(ctx, before, before.Clone(), diff.Scope{
				Scalars: []string{model.FieldUniversityEndDate}, Scores: true, Sessions: true,
			})

			Convey("Then nothing is dispatched", func() {
				So(sent, ShouldBeFalse)
				So(rec.envs, ShouldBeEmpty)
			})
		})

		Convey("When only the end date changes", func() {
			before := student()
			after := before.Clone()
			next := "2026-01-31"
			after.UniversityEndDate = &next
			sent := trig.Updated(ctx, before, after, diff.Scope{
				Scalars: []string{model.FieldUniversityEndDate}, Scores: true, Sessions: true,
			})

			Convey("Then one UPDATE carries only that change", func() {
				So(sent, ShouldBeTrue)
				So(rec.envs, ShouldHaveLength, 1)
				env := rec.envs[0]
				So(env.Kind, ShouldEqual, event.Update)
				So(env.Changes, ShouldNotBeNil)

				raw, err := json.Marshal(env.Changes)
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"universityend_date":"2026-01-31"}`)
			})
		})

		Convey("When a mark is added", func() {
			before := student()
			after := before.Clone()
			after.Marks = append(after.Marks, model.Mark{Subject: "Science", Marks: intp(90), MaxMarks: 100})
			trig.Updated(ctx, before, after, diff.Scope{Scores: true})

			Convey("Then the change lists only the new mark", func() {
				So(rec.envs, ShouldHaveLength, 1)
				changes := rec.envs[0].Changes
				So(changes.Scores, ShouldHaveLength, 1)
				So(changes.Scores[0].Subject, ShouldEqual, "Science")
				So(changes.Scores[0].StudentID, ShouldEqual, 5)
				So(changes.Sessions, ShouldBeEmpty)
			})
		})

		Convey("When a student is deleted", func() {
			trig.Deleted(ctx, student())

			Convey("Then nothing is dispatched", func() {
				So(rec.envs, ShouldBeEmpty)
			})
		})
	})
}
