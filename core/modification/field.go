package modification

import "github.com/farafmb/klubhaus/core/user"

// Field is a tracked profile field.
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	ref   func(p *user.Profile) *string
}

var (
	FirstName = Field{Name: "first_name", Label: "First name", ref: func(p *user.Profile) *string { return &p.FirstName }}
	LastName  = Field{Name: "last_name", Label: "Last name", ref: func(p *user.Profile) *string { return &p.LastName }}
	Email     = Field{Name: "email", Label: "E-mail address", ref: func(p *user.Profile) *string { return &p.Email }}
	Phone     = Field{Name: "phone", Label: "Mobile number", ref: func(p *user.Profile) *string { return &p.Phone }}
	Faculty   = Field{Name: "faculty", Label: "Faculty", ref: func(p *user.Profile) *string { return &p.Faculty }}
	Student   = Field{Name: "student", Label: "Student ID", ref: func(p *user.Profile) *string { return &p.Student }}

	// BasicFields are always tracked, in canonical order.
	BasicFields = []Field{FirstName, LastName, Email, Phone}
	// ExtendedFields add the university data to BasicFields.
	ExtendedFields = []Field{FirstName, LastName, Email, Phone, Faculty, Student}
)

// TrackedFields returns the canonical field set of the configured profile schema.
func TrackedFields(extended bool) []Field {
	if extended {
		return ExtendedFields
	}
	return BasicFields
}

// FieldByName looks name up among all known fields.
func FieldByName(name string) (Field, bool) {
	for _, f := range ExtendedFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (f Field) Get(p user.Profile) string {
	return *f.ref(&p)
}

func (f Field) Set(p *user.Profile, value string) {
	*f.ref(p) = value
}

// LabelOf returns the human readable label of the named field, or the name itself if unknown.
func LabelOf(name string) string {
	if f, ok := FieldByName(name); ok {
		return f.Label
	}
	return name
}
