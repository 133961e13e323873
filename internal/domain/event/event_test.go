package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuilder(t *testing.T) {
	Convey("Given a builder with a fixed clock", t, func() {
		at := time.Date(2024, 5, 1, 10, 30, 0, 123_000_000, time.FixedZone("CEST", 2*60*60))
		b := event.NewBuilder(event.WithClock(func() time.Time { return at }))
		marks := 88
		student := model.Student{ID: 3, Name: "Ada", Marks: []model.Mark{{Subject: "Math", Marks: &marks, MaxMarks: 100}}}
		changes := diff.Diff{Scalars: map[string]string{"name": "Ada"}}

		Convey("When building a CREATE envelope with a diff", func() {
			env := b.Build(event.Create, student, changes)

			Convey("Then the diff is dropped and the snapshot kept", func() {
				So(env.Kind, ShouldEqual, event.Create)
				So(env.Changes, ShouldBeNil)
				So(env.Data.ID, ShouldEqual, 3)
				So(env.ID, ShouldNotBeEmpty)
				So(env.Timestamp.Location(), ShouldEqual, time.UTC)
			})

			Convey("And the JSON body has no changes key", func() {
				raw, err := json.Marshal(env)
				So(err, ShouldBeNil)

				var out map[string]json.RawMessage
				So(json.Unmarshal(raw, &out), ShouldBeNil)
				So(out, ShouldNotContainKey, "changes")
				So(out, ShouldNotContainKey, "ID")
				So(string(out["event"]), ShouldEqual, `"CREATE"`)
				So(string(out["timestamp"]), ShouldEqual, `"2024-05-01T08:30:00.123Z"`)
			})
		})

		Convey("When building an UPDATE envelope with a diff", func() {
			env := b.Build(event.Update, student, changes)

			Convey("Then the diff is attached", func() {
				So(env.Changes, ShouldNotBeNil)
				raw, err := json.Marshal(env)
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"changes":{"name":"Ada"}`)
			})
		})

		Convey("When building an UPDATE envelope with an empty diff", func() {
			env := b.Build(event.Update, student, diff.Diff{})

			Convey("Then no diff is attached", func() {
				So(env.Changes, ShouldBeNil)
			})
		})

		Convey("When the source snapshot is mutated after building", func() {
			env := b.Build(event.Create, student, diff.Diff{})
			*student.Marks[0].Marks = 1

			Convey("Then the envelope is unaffected", func() {
				So(*env.Data.Marks[0].Marks, ShouldEqual, 88)
			})
		})

		Convey("When building two envelopes", func() {
			first := b.Build(event.Create, student, diff.Diff{})
			second := b.Build(event.Create, student, diff.Diff{})

			Convey("Then they get distinct ids", func() {
				So(first.ID, ShouldNotEqual, second.ID)
			})
		})
	})
}
