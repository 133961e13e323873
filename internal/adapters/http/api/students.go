package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/roster/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// StudentsHandler serves /api/students and /api/students/{id}.
type StudentsHandler struct {
	deps StudentDependencies
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(deps StudentDependencies) *StudentsHandler {
	return &StudentsHandler{deps: deps}
}

// HandleCollection handles GET and POST /api/students.
func (h *StudentsHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.NotFound(w, r)
	}
}

// HandleItem handles GET, PUT and DELETE /api/students/{id}.
func (h *StudentsHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.student"
	id, err := pathID(r.URL.Path, studentsPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	switch r.Method {
	case http.MethodGet:
		st, err := h.deps.GetStudent(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPut, http.MethodPatch:
		h.update(w, r, id)
	case http.MethodDelete:
		if err := h.deps.DeleteStudent(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Student deleted successfully"})
	default:
		http.NotFound(w, r)
	}
}

func (h *StudentsHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.deps.ListStudents(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *StudentsHandler) create(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_student"
	var in model.Student
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	in.ID = 0

	created, err := h.deps.CreateStudent(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *StudentsHandler) update(w http.ResponseWriter, r *http.Request, id int64) {
	const op = "api.update_student"
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	patch, err := decodePatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	updated, err := h.deps.UpdateStudent(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// decodePatch keeps track of which fields the client sent. A scalar sent as
// null is asserted as cleared; marks or exams sent as null are ignored.
func decodePatch(body map[string]json.RawMessage) (model.Patch, error) {
	var p model.Patch
	for _, field := range model.ScalarFields {
		raw, ok := body[field]
		if !ok {
			continue
		}
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return model.Patch{}, fmt.Errorf("field %s must be a string or null", field)
		}
		if p.Scalars == nil {
			p.Scalars = make(map[string]*string)
		}
		p.Scalars[field] = v
	}

	if raw, ok := body["marks"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p.Marks); err != nil {
			return model.Patch{}, fmt.Errorf("marks must be a list: %w", err)
		}
		if p.Marks == nil {
			p.Marks = []model.Mark{}
		}
		p.MarksSet = true
	}
	if raw, ok := body["exams"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p.Exams); err != nil {
			return model.Patch{}, fmt.Errorf("exams must be a list: %w", err)
		}
		if p.Exams == nil {
			p.Exams = []model.Exam{}
		}
		p.ExamsSet = true
	}
	return p, nil
}
