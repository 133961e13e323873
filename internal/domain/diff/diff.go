// Package diff computes what changed between two snapshots of a student,
// restricted to the fields an update request actually asserted.
//
// Policies kept from the existing contract:
//   - a scalar changed to null is never reported;
//   - marks removed from the new set are never reported;
//   - exams are compared by list position unless a session key is configured,
//     and exams removed by shortening the list are never reported.
package diff

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/okian/roster/internal/domain/model"
)

// Wire names of the list categories inside a serialized Diff.
const (
	KeyMarks = "marks"
	KeyExams = "exams"
)

// Scope names the categories an update request asserted.
type Scope struct {
	Scalars  []string
	Scores   bool
	Sessions bool
}

// Diff is the minimal description of an update. Nil or empty members mean
// "no change in that category".
type Diff struct {
	Scalars  map[string]string
	Scores   []model.Mark
	Sessions []model.Exam
}

// Empty reports whether no category carries a change.
func (d Diff) Empty() bool {
	return len(d.Scalars) == 0 && len(d.Scores) == 0 && len(d.Sessions) == 0
}

// MarshalJSON flattens scalar changes by field name next to the "marks" and
// "exams" lists, omitting every empty category.
func (d Diff) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Scalars)+2)
	for k, v := range d.Scalars {
		out[k] = v
	}
	if len(d.Scores) > 0 {
		out[KeyMarks] = d.Scores
	}
	if len(d.Sessions) > 0 {
		out[KeyExams] = d.Sessions
	}
	return json.Marshal(out)
}

// SessionKey derives a natural key for an exam.
type SessionKey func(model.Exam) string

// SessionKeyNameDate identifies an exam by name and calendar day.
func SessionKeyNameDate(e model.Exam) string {
	return strings.TrimSpace(e.Name) + "|" + normalizeDate(e.Date)
}

// Engine computes diffs. The zero value compares sessions positionally.
type Engine struct {
	sessionKey SessionKey
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionKey matches sessions by key instead of by list position.
func WithSessionKey(key SessionKey) Option {
	return func(e *Engine) {
		e.sessionKey = key
	}
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute returns the changes from before to after within scope.
func (e *Engine) Compute(before, after model.Student, scope Scope) Diff {
	var d Diff
	if len(scope.Scalars) > 0 {
		d.Scalars = Scalars(before.Scalars(), after.Scalars(), scope.Scalars)
	}
	if scope.Scores {
		d.Scores = Scores(before.Marks, after.Marks)
		for i := range d.Scores {
			d.Scores[i].StudentID = after.ID
		}
	}
	if scope.Sessions {
		if e != nil && e.sessionKey != nil {
			d.Sessions = SessionsByKey(before.Exams, after.Exams, e.sessionKey)
		} else {
			d.Sessions = Sessions(before.Exams, after.Exams)
		}
	}
	return d
}

// Scalars compares the listed fields. A field is reported when its value
// differs and the new value is not null.
func Scalars(before, after map[string]*string, fields []string) map[string]string {
	var out map[string]string
	for _, f := range fields {
		o, n := normalize(before[f]), normalize(after[f])
		if n == nil {
			continue
		}
		if o != nil && *o == *n {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[f] = *n
	}
	return out
}

// Scores reports marks in after that are new or whose marks/maxMarks differ
// from the same subject in before. Invalid marks are skipped.
func Scores(before, after []model.Mark) []model.Mark {
	old := make(map[string]model.Mark, len(before))
	for _, m := range before {
		old[m.Subject] = m
	}

	var out []model.Mark
	for _, m := range after {
		if !m.Valid() {
			continue
		}
		prev, ok := old[m.Subject]
		if ok && sameScore(prev, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Sessions compares exams by index. The new list is first reduced to exams
// with a name and a date; any index past the end of before is reported.
func Sessions(before, after []model.Exam) []model.Exam {
	var out []model.Exam
	for i, ex := range validExams(after) {
		if i >= len(before) || !sameSession(before[i], ex) {
			out = append(out, ex)
		}
	}
	return out
}

// SessionsByKey compares exams by a natural key rather than by position.
func SessionsByKey(before, after []model.Exam, key SessionKey) []model.Exam {
	old := make(map[string]model.Exam, len(before))
	for _, ex := range before {
		old[key(ex)] = ex
	}

	var out []model.Exam
	for _, ex := range validExams(after) {
		prev, ok := old[key(ex)]
		if ok && sameSession(prev, ex) {
			continue
		}
		out = append(out, ex)
	}
	return out
}

func validExams(exams []model.Exam) []model.Exam {
	out := make([]model.Exam, 0, len(exams))
	for _, ex := range exams {
		if ex.Valid() {
			out = append(out, ex)
		}
	}
	return out
}

func sameScore(a, b model.Mark) bool {
	if a.MaxMarks != b.MaxMarks {
		return false
	}
	if a.Marks == nil || b.Marks == nil {
		return a.Marks == b.Marks
	}
	return *a.Marks == *b.Marks
}

func sameSession(a, b model.Exam) bool {
	return a.Name == b.Name &&
		normalizeDate(a.Date) == normalizeDate(b.Date) &&
		normalizeTime(a.StartTime) == normalizeTime(b.StartTime) &&
		normalizeTime(a.EndTime) == normalizeTime(b.EndTime) &&
		a.Room == b.Room &&
		a.Type == b.Type
}

func normalize(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

// normalizeDate reduces a date or timestamp to YYYY-MM-DD.
func normalizeDate(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	if i := strings.IndexByte(v, 'T'); i >= 0 {
		return v[:i]
	}
	return v
}

// normalizeTime reduces HH:MM:SS to HH:MM.
func normalizeTime(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 5 {
		return v[:5]
	}
	return v
}

// ScopeFor returns the scope asserted by a patch.
func ScopeFor(p model.Patch) Scope {
	return Scope{
		Scalars:  p.ScalarFields(),
		Scores:   p.MarksSet,
		Sessions: p.ExamsSet,
	}
}
