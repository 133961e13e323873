package model

// Patch describes the fields an update request asserted. A key present in
// Scalars was submitted; a nil value means the client set it to null.
type Patch struct {
	Scalars  map[string]*string
	Marks    []Mark
	MarksSet bool
	Exams    []Exam
	ExamsSet bool
}

// Empty reports whether the patch asserts nothing.
func (p Patch) Empty() bool {
	return len(p.Scalars) == 0 && !p.MarksSet && !p.ExamsSet
}

// Has reports whether a scalar field was asserted.
func (p Patch) Has(field string) bool {
	_, ok := p.Scalars[field]
	return ok
}

// ScalarFields returns the asserted scalar names in wire order.
func (p Patch) ScalarFields() []string {
	fields := make([]string, 0, len(p.Scalars))
	for _, f := range ScalarFields {
		if p.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}
