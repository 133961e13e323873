package diff_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func score(v int) *int { return &v }

func str(v string) *string { return &v }

func mark(subject string, marks, max int) model.Mark {
	return model.Mark{Subject: subject, Marks: score(marks), MaxMarks: max}
}

func exam(name, date string) model.Exam {
	return model.Exam{Name: name, Date: date, StartTime: "09:00", EndTime: "11:00", Room: "A1", Type: "written"}
}

func TestScores(t *testing.T) {
	Convey("Given an old set of marks", t, func() {
		old := []model.Mark{mark("Math", 80, 100)}

		Convey("When a new subject is added", func() {
			changed := diff.Scores(old, []model.Mark{mark("Math", 80, 100), mark("Science", 70, 100)})

			Convey("Then only the new subject is reported", func() {
				So(changed, ShouldHaveLength, 1)
				So(changed[0].Subject, ShouldEqual, "Science")
				So(*changed[0].Marks, ShouldEqual, 70)
				So(changed[0].MaxMarks, ShouldEqual, 100)
			})
		})

		Convey("When an existing subject changes its score", func() {
			changed := diff.Scores(old, []model.Mark{mark("Math", 90, 100)})

			Convey("Then it is reported with the new value", func() {
				So(changed, ShouldHaveLength, 1)
				So(changed[0].Subject, ShouldEqual, "Math")
				So(*changed[0].Marks, ShouldEqual, 90)
			})
		})

		Convey("When only the maximum changes", func() {
			changed := diff.Scores(old, []model.Mark{mark("Math", 80, 120)})

			Convey("Then it is reported", func() {
				So(changed, ShouldHaveLength, 1)
				So(changed[0].MaxMarks, ShouldEqual, 120)
			})
		})

		Convey("When a subject disappears", func() {
			changed := diff.Scores(
				[]model.Mark{mark("Math", 80, 100), mark("Science", 70, 100)},
				[]model.Mark{mark("Math", 80, 100)},
			)

			Convey("Then nothing is reported", func() {
				So(changed, ShouldBeEmpty)
			})
		})

		Convey("When new marks are malformed", func() {
			changed := diff.Scores(old, []model.Mark{
				{Subject: "", Marks: score(50), MaxMarks: 100},
				{Subject: "History", Marks: nil, MaxMarks: 100},
			})

			Convey("Then they are silently excluded", func() {
				So(changed, ShouldBeEmpty)
			})
		})
	})
}

func TestSessions(t *testing.T) {
	Convey("Given an old list of exams", t, func() {
		old := []model.Exam{exam("Midterm", "2024-05-01")}

		Convey("When an exam is appended", func() {
			changed := diff.Sessions(old, []model.Exam{exam("Midterm", "2024-05-01"), exam("Final", "2024-06-01")})

			Convey("Then the index without an old counterpart is reported", func() {
				So(changed, ShouldHaveLength, 1)
				So(changed[0].Name, ShouldEqual, "Final")
			})
		})

		Convey("When dates and times differ only in granularity", func() {
			stored := []model.Exam{{Name: "Midterm", Date: "2024-05-01T00:00:00.000Z", StartTime: "09:00:00", EndTime: "11:00:00", Room: "A1", Type: "written"}}
			changed := diff.Sessions(stored, []model.Exam{exam("Midterm", "2024-05-01")})

			Convey("Then nothing is reported", func() {
				So(changed, ShouldBeEmpty)
			})
		})

		Convey("When a field of an existing exam changes", func() {
			moved := exam("Midterm", "2024-05-01")
			moved.Room = "B2"
			changed := diff.Sessions(old, []model.Exam{moved})

			Convey("Then it is reported", func() {
				So(changed, ShouldHaveLength, 1)
				So(changed[0].Room, ShouldEqual, "B2")
			})
		})

		Convey("When the list is shortened", func() {
			changed := diff.Sessions([]model.Exam{exam("Midterm", "2024-05-01"), exam("Final", "2024-06-01")}, old)

			Convey("Then the removed exam is not reported", func() {
				So(changed, ShouldBeEmpty)
			})
		})

		Convey("When exams are reordered without content change", func() {
			both := []model.Exam{exam("Midterm", "2024-05-01"), exam("Final", "2024-06-01")}
			swapped := []model.Exam{both[1], both[0]}
			changed := diff.Sessions(both, swapped)

			Convey("Then every moved position is reported", func() {
				So(changed, ShouldHaveLength, 2)
			})
		})

		Convey("When new exams lack a name or a date", func() {
			changed := diff.Sessions(nil, []model.Exam{{Name: "Quiz"}, {Date: "2024-01-01"}})

			Convey("Then they are ignored", func() {
				So(changed, ShouldBeEmpty)
			})
		})
	})
}

func TestSessionsByKey(t *testing.T) {
	Convey("Given an engine keyed by exam name and date", t, func() {
		engine := diff.New(diff.WithSessionKey(diff.SessionKeyNameDate))
		both := []model.Exam{exam("Midterm", "2024-05-01"), exam("Final", "2024-06-01")}

		Convey("When exams are reordered without content change", func() {
			d := engine.Compute(
				model.Student{Exams: both},
				model.Student{Exams: []model.Exam{both[1], both[0]}},
				diff.Scope{Sessions: true},
			)

			Convey("Then nothing is reported", func() {
				So(d.Empty(), ShouldBeTrue)
			})
		})

		Convey("When a keyed exam changes room", func() {
			moved := both[1]
			moved.Room = "Hall"
			d := engine.Compute(
				model.Student{Exams: both},
				model.Student{Exams: []model.Exam{both[0], moved}},
				diff.Scope{Sessions: true},
			)

			Convey("Then only that exam is reported", func() {
				So(d.Sessions, ShouldHaveLength, 1)
				So(d.Sessions[0].Room, ShouldEqual, "Hall")
			})
		})
	})
}

func TestScalars(t *testing.T) {
	Convey("Given old and new scalar values", t, func() {
		before := map[string]*string{"universityend_date": str("2025-06-30"), "name": str("Ada")}

		Convey("When an asserted field changes", func() {
			after := map[string]*string{"universityend_date": str("2026-06-30"), "name": str("Ada")}
			changed := diff.Scalars(before, after, []string{"universityend_date", "name"})

			Convey("Then it is reported with the new value", func() {
				So(changed, ShouldResemble, map[string]string{"universityend_date": "2026-06-30"})
			})
		})

		Convey("When a field changes but was not asserted", func() {
			after := map[string]*string{"universityend_date": str("2025-06-30"), "name": str("Grace")}
			changed := diff.Scalars(before, after, []string{"universityend_date"})

			Convey("Then it is not reported", func() {
				So(changed, ShouldBeEmpty)
			})
		})

		Convey("When an asserted field is set to null", func() {
			after := map[string]*string{"universityend_date": nil}
			changed := diff.Scalars(before, after, []string{"universityend_date"})

			Convey("Then the change is silent", func() {
				So(changed, ShouldBeEmpty)
			})
		})

		Convey("When a null field becomes set", func() {
			changed := diff.Scalars(
				map[string]*string{"universityend_date": str("")},
				map[string]*string{"universityend_date": str("2027-01-01")},
				[]string{"universityend_date"},
			)

			Convey("Then it is reported", func() {
				So(changed["universityend_date"], ShouldEqual, "2027-01-01")
			})
		})
	})
}

func TestCompute(t *testing.T) {
	Convey("Given a student before and after an update", t, func() {
		engine := diff.New()
		end := "2025-06-30"
		before := model.Student{
			ID:                7,
			Name:              "Ada",
			UniversityEndDate: &end,
			Marks:             []model.Mark{mark("Math", 80, 100)},
			Exams:             []model.Exam{exam("Midterm", "2024-05-01")},
		}

		Convey("When nothing changed", func() {
			scope := diff.Scope{Scalars: []string{"universityend_date"}, Scores: true, Sessions: true}
			first := engine.Compute(before, before.Clone(), scope)
			second := engine.Compute(before, before.Clone(), scope)

			Convey("Then the diff is empty every time", func() {
				So(first.Empty(), ShouldBeTrue)
				So(second.Empty(), ShouldBeTrue)
			})
		})

		Convey("When marks changed but scores were not asserted", func() {
			after := before.Clone()
			after.Marks = []model.Mark{mark("Math", 10, 100)}
			d := engine.Compute(before, after, diff.Scope{Sessions: true})

			Convey("Then no change is reported", func() {
				So(d.Empty(), ShouldBeTrue)
			})
		})

		Convey("When every category changed", func() {
			after := before.Clone()
			next := "2026-01-31"
			after.UniversityEndDate = &next
			after.Marks = []model.Mark{mark("Math", 95, 100)}
			after.Exams = append(after.Exams, exam("Final", "2024-06-01"))
			d := engine.Compute(before, after, diff.Scope{Scalars: []string{"universityend_date"}, Scores: true, Sessions: true})

			Convey("Then each category is present", func() {
				So(d.Empty(), ShouldBeFalse)
				So(d.Scalars["universityend_date"], ShouldEqual, "2026-01-31")
				So(d.Scores, ShouldHaveLength, 1)
				So(d.Scores[0].StudentID, ShouldEqual, 7)
				So(d.Sessions, ShouldHaveLength, 1)
			})

			Convey("And it serializes with flattened scalar keys", func() {
				raw, err := json.Marshal(d)
				So(err, ShouldBeNil)

				var out map[string]json.RawMessage
				So(json.Unmarshal(raw, &out), ShouldBeNil)
				So(out, ShouldContainKey, "universityend_date")
				So(out, ShouldContainKey, "marks")
				So(out, ShouldContainKey, "exams")
			})
		})

		Convey("When only scalars changed", func() {
			after := before.Clone()
			after.Name = "Ada L."
			d := engine.Compute(before, after, diff.Scope{Scalars: []string{"name"}})

			Convey("Then the empty list categories are omitted from JSON", func() {
				raw, err := json.Marshal(d)
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"name":"Ada L."}`)
			})
		})
	})
}
