// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// DefaultMaxMarks applies when a mark arrives without a maximum.
const DefaultMaxMarks = 100

// Scalar field names, as they appear on the wire.
const (
	FieldName              = "name"
	FieldEmail             = "email"
	FieldPhone             = "phone"
	FieldAddress           = "address"
	FieldDateOfBirth       = "dateOfBirth"
	FieldUniversityName    = "university_name"
	FieldUniversityEndDate = "universityend_date"
)

// ScalarFields lists every scalar attribute of a Student in wire order.
var ScalarFields = []string{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldAddress,
	FieldDateOfBirth,
	FieldUniversityName,
	FieldUniversityEndDate,
}

// Student is the tracked subject record: scalar attributes plus its marks
// and scheduled exams.
type Student struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Address           string    `json:"address"`
	DateOfBirth       string    `json:"dateOfBirth"`
	UniversityName    string    `json:"university_name"`
	UniversityEndDate *string   `json:"universityend_date"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Marks             []Mark    `json:"marks"`
	Exams             []Exam    `json:"exams"`
}

// Mark is a score for one subject. (StudentID, Subject) is unique.
type Mark struct {
	StudentID int64  `json:"studentId,omitempty"`
	Subject   string `json:"subject"`
	// Marks is nil when the client sent no usable score.
	Marks    *int `json:"marks"`
	MaxMarks int  `json:"maxMarks"`
}

// Valid reports whether the mark can be compared and reported.
func (m Mark) Valid() bool {
	return strings.TrimSpace(m.Subject) != "" && m.Marks != nil
}

// Exam is a scheduled session. Exams have no natural key and keep the order
// in which they were submitted.
type Exam struct {
	ID        int64  `json:"id,omitempty"`
	StudentID int64  `json:"studentId,omitempty"`
	Name      string `json:"exam_name"`
	Date      string `json:"exam_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Room      string `json:"room_number"`
	Type      string `json:"exam_type"`
}

// Valid reports whether the exam carries a name and a date.
func (e Exam) Valid() bool {
	return strings.TrimSpace(e.Name) != "" && strings.TrimSpace(e.Date) != ""
}

// Scalars returns the scalar attributes keyed by wire name. Empty values are
// normalized to nil.
func (s Student) Scalars() map[string]*string {
	out := map[string]*string{
		FieldName:           nullable(s.Name),
		FieldEmail:          nullable(s.Email),
		FieldPhone:          nullable(s.Phone),
		FieldAddress:        nullable(s.Address),
		FieldDateOfBirth:    nullable(s.DateOfBirth),
		FieldUniversityName: nullable(s.UniversityName),
	}
	if s.UniversityEndDate != nil {
		out[FieldUniversityEndDate] = nullable(*s.UniversityEndDate)
	} else {
		out[FieldUniversityEndDate] = nil
	}
	return out
}

// Clone returns a deep copy so before/after snapshots never share slices.
func (s Student) Clone() Student {
	c := s
	if s.UniversityEndDate != nil {
		v := *s.UniversityEndDate
		c.UniversityEndDate = &v
	}
	c.Marks = make([]Mark, len(s.Marks))
	for i, m := range s.Marks {
		c.Marks[i] = m
		if m.Marks != nil {
			v := *m.Marks
			c.Marks[i].Marks = &v
		}
	}
	c.Exams = append(make([]Exam, 0, len(s.Exams)), s.Exams...)
	return c
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
