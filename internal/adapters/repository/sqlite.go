package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	"github.com/okian/roster/pkg/metrics"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
	timeLayout         = time.RFC3339Nano
)

// scalarColumns maps wire field names to student columns.
var scalarColumns = map[string]string{
	model.FieldName:              "name",
	model.FieldEmail:             "email",
	model.FieldPhone:             "phone",
	model.FieldAddress:           "address",
	model.FieldDateOfBirth:       "date_of_birth",
	model.FieldUniversityName:    "university_name",
	model.FieldUniversityEndDate: "university_end_date",
}

const studentColumns = `id, name, email, phone, address, date_of_birth, university_name,
	university_end_date, created_at, updated_at`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on database/sql. The handle is owned by the
// store and released by Close.
type SQLStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	now         func() time.Time
	logger      logger.Logger
}

var _ Store = (*SQLStore)(nil)

// New wraps an existing handle without touching the schema.
func New(db *sql.DB, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:          db,
		busyTimeout: defaultBusyTimeout,
		now:         time.Now,
		logger:      logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) the SQLite database at path and applies the
// embedded schema.
func Open(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoPath
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := New(db, opts...)
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "database ready", logger.String("path", path))
	return s, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateStudent inserts the student with its marks and exams in one
// transaction and returns the stored record.
func (s *SQLStore) CreateStudent(ctx context.Context, st model.Student) (model.Student, error) {
	defer observe(time.Now())

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ts := s.now().UTC().Format(timeLayout)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO students(name, email, phone, address, date_of_birth, university_name,
				university_end_date, created_at, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			st.Name, st.Email, nullStr(st.Phone), nullStr(st.Address), nullStr(st.DateOfBirth),
			nullStr(st.UniversityName), nullPtr(st.UniversityEndDate), ts, ts,
		)
		if err != nil {
			return wrapWrite("insert student", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("student id: %w", err)
		}
		if err := insertMarks(ctx, tx, id, st.Marks); err != nil {
			return err
		}
		return insertExams(ctx, tx, id, st.Exams)
	})
	if err != nil {
		return model.Student{}, err
	}
	return s.GetStudent(ctx, id)
}

// GetStudent loads one student with marks and exams.
func (s *SQLStore) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	defer observe(time.Now())
	return getStudent(ctx, s.db, id)
}

// ListStudents returns every student ordered by id.
func (s *SQLStore) ListStudents(ctx context.Context) ([]model.Student, error) {
	defer observe(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	students := []model.Student{}
	index := map[int64]int{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[st.ID] = len(students)
		students = append(students, st)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	marks, err := loadMarks(ctx, s.db, 0)
	if err != nil {
		return nil, err
	}
	for _, m := range marks {
		if i, ok := index[m.StudentID]; ok {
			students[i].Marks = append(students[i].Marks, m)
		}
	}
	exams, err := loadExams(ctx, s.db, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range exams {
		if i, ok := index[e.StudentID]; ok {
			students[i].Exams = append(students[i].Exams, e)
		}
	}
	return students, nil
}

// UpdateStudent applies the asserted fields of p in one transaction.
func (s *SQLStore) UpdateStudent(ctx context.Context, id int64, p model.Patch) (model.Student, error) {
	defer observe(time.Now())

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sets := []string{"updated_at = ?"}
		args := []any{s.now().UTC().Format(timeLayout)}
		for _, f := range p.ScalarFields() {
			col, ok := scalarColumns[f]
			if !ok {
				continue
			}
			sets = append(sets, col+" = ?")
			args = append(args, nullPtr(p.Scalars[f]))
		}
		args = append(args, id)

		res, err := tx.ExecContext(ctx,
			`UPDATE students SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return wrapWrite("update student", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("student %d: %w", id, ErrNotFound)
		}

		if p.MarksSet {
			if _, err := tx.ExecContext(ctx, `DELETE FROM marks WHERE student_id = ?`, id); err != nil {
				return fmt.Errorf("clear marks: %w", err)
			}
			if err := insertMarks(ctx, tx, id, p.Marks); err != nil {
				return err
			}
		}
		if p.ExamsSet {
			if _, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE student_id = ?`, id); err != nil {
				return fmt.Errorf("clear exams: %w", err)
			}
			if err := insertExams(ctx, tx, id, p.Exams); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Student{}, err
	}
	return s.GetStudent(ctx, id)
}

// DeleteStudent removes the student with its marks and exams.
func (s *SQLStore) DeleteStudent(ctx context.Context, id int64) error {
	defer observe(time.Now())

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM marks WHERE student_id = ?`, id); err != nil {
			return fmt.Errorf("delete marks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE student_id = ?`, id); err != nil {
			return fmt.Errorf("delete exams: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete student: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("student %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// StudentIDByEmail returns the id of the student with email.
func (s *SQLStore) StudentIDByEmail(ctx context.Context, email string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM students WHERE email = ? LIMIT 1`, email)
}

// StudentIDByPhone returns the id of a student with phone.
func (s *SQLStore) StudentIDByPhone(ctx context.Context, phone string) (int64, error) {
	return s.lookupID(ctx, `SELECT id FROM students WHERE phone = ? LIMIT 1`, phone)
}

// CountStudents returns the number of stored students.
func (s *SQLStore) CountStudents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}

// ListSubscribers returns every subscriber, newest first.
func (s *SQLStore) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return s.subscribers(ctx, `SELECT id, url, is_active, created_at FROM webhooks ORDER BY created_at DESC, id DESC`)
}

// ActiveSubscribers returns the subscribers that receive envelopes.
func (s *SQLStore) ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return s.subscribers(ctx, `SELECT id, url, is_active, created_at FROM webhooks WHERE is_active = 1 ORDER BY id`)
}

// GetSubscriber loads one subscriber.
func (s *SQLStore) GetSubscriber(ctx context.Context, id int64) (model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, url, is_active, created_at FROM webhooks WHERE id = ?`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscriber{}, fmt.Errorf("webhook %d: %w", id, ErrNotFound)
	}
	return sub, err
}

// CreateSubscriber registers a new endpoint.
func (s *SQLStore) CreateSubscriber(ctx context.Context, url string, active bool) (model.Subscriber, error) {
	defer observe(time.Now())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks(url, is_active, created_at) VALUES(?,?,?)`,
		url, active, s.now().UTC().Format(timeLayout))
	if err != nil {
		return model.Subscriber{}, wrapWrite("insert webhook", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("webhook id: %w", err)
	}
	return s.GetSubscriber(ctx, id)
}

// UpdateSubscriber changes the url and/or the active flag.
func (s *SQLStore) UpdateSubscriber(ctx context.Context, id int64, url *string, active *bool) (model.Subscriber, error) {
	defer observe(time.Now())

	var (
		sets []string
		args []any
	)
	if url != nil {
		sets = append(sets, "url = ?")
		args = append(args, *url)
	}
	if active != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *active)
	}
	if len(sets) == 0 {
		return s.GetSubscriber(ctx, id)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE webhooks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return model.Subscriber{}, wrapWrite("update webhook", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Subscriber{}, fmt.Errorf("webhook %d: %w", id, ErrNotFound)
	}
	return s.GetSubscriber(ctx, id)
}

// DeleteSubscriber removes an endpoint.
func (s *SQLStore) DeleteSubscriber(ctx context.Context, id int64) error {
	defer observe(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("webhook %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, "rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) lookupID(ctx context.Context, query, value string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup student: %w", err)
	}
	return id, nil
}

func (s *SQLStore) subscribers(ctx context.Context, query string) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	out := []model.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, sub)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	return out, nil
}

func getStudent(ctx context.Context, q queryer, id int64) (model.Student, error) {
	row := q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Student{}, fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Student{}, err
	}
	if st.Marks, err = loadMarks(ctx, q, id); err != nil {
		return model.Student{}, err
	}
	if st.Exams, err = loadExams(ctx, q, id); err != nil {
		return model.Student{}, err
	}
	return st, nil
}

// loadMarks returns the marks of one student, or of all students when
// studentID is zero.
func loadMarks(ctx context.Context, q queryer, studentID int64) ([]model.Mark, error) {
	query := `SELECT student_id, subject, marks, max_marks FROM marks`
	var args []any
	if studentID != 0 {
		query += ` WHERE student_id = ?`
		args = append(args, studentID)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY student_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	out := []model.Mark{}
	for rows.Next() {
		var (
			m     model.Mark
			score sql.NullInt64
		)
		if err := rows.Scan(&m.StudentID, &m.Subject, &score, &m.MaxMarks); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			m.Marks = &v
		}
		out = append(out, m)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	return out, nil
}

// loadExams returns exams in submission order.
func loadExams(ctx context.Context, q queryer, studentID int64) ([]model.Exam, error) {
	query := `SELECT id, student_id, exam_name, exam_date, start_time, end_time, room_number, exam_type FROM exams`
	var args []any
	if studentID != 0 {
		query += ` WHERE student_id = ?`
		args = append(args, studentID)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY student_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	out := []model.Exam{}
	for rows.Next() {
		var (
			e                                  model.Exam
			name, date, start, end, room, kind sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &name, &date, &start, &end, &room, &kind); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		e.Name, e.Date, e.StartTime = name.String, date.String, start.String
		e.EndTime, e.Room, e.Type = end.String, room.String, kind.String
		out = append(out, e)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	return out, nil
}

func insertMarks(ctx context.Context, tx *sql.Tx, studentID int64, marks []model.Mark) error {
	for _, m := range marks {
		maxMarks := m.MaxMarks
		if maxMarks == 0 {
			maxMarks = model.DefaultMaxMarks
		}
		var score any
		if m.Marks != nil {
			score = *m.Marks
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO marks(student_id, subject, marks, max_marks) VALUES(?,?,?,?)`,
			studentID, m.Subject, score, maxMarks,
		); err != nil {
			return wrapWrite("insert mark", err)
		}
	}
	return nil
}

func insertExams(ctx context.Context, tx *sql.Tx, studentID int64, exams []model.Exam) error {
	for i, e := range exams {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exams(student_id, position, exam_name, exam_date, start_time, end_time, room_number, exam_type)
			 VALUES(?,?,?,?,?,?,?,?)`,
			studentID, i, nullStr(e.Name), nullStr(e.Date), nullStr(e.StartTime),
			nullStr(e.EndTime), nullStr(e.Room), nullStr(e.Type),
		); err != nil {
			return wrapWrite("insert exam", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (model.Student, error) {
	var (
		st                               model.Student
		phone, address, dob, uni, uniEnd sql.NullString
		createdAt, updatedAt             string
	)
	err := row.Scan(&st.ID, &st.Name, &st.Email, &phone, &address, &dob, &uni, &uniEnd, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scan student: %w", err)
	}
	st.Phone, st.Address, st.DateOfBirth, st.UniversityName = phone.String, address.String, dob.String, uni.String
	if uniEnd.Valid {
		v := uniEnd.String
		st.UniversityEndDate = &v
	}
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	st.Marks = []model.Mark{}
	st.Exams = []model.Exam{}
	return st, nil
}

func scanSubscriber(row scanner) (model.Subscriber, error) {
	var (
		sub       model.Subscriber
		createdAt string
	)
	if err := row.Scan(&sub.ID, &sub.URL, &sub.Active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sub, err
		}
		return sub, fmt.Errorf("scan webhook: %w", err)
	}
	sub.CreatedAt = parseTime(createdAt)
	return sub, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func wrapWrite(op string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func observe(start time.Time) {
	metrics.RecordStoreLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
