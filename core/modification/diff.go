package modification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/farafmb/klubhaus/core/user"
)

var (
	// errors
	ErrNoChangesSubmitted = errors.New("no changes submitted")
	ErrUnknownField       = errors.New("unknown profile field")
)

type (
	// Change holds the value of a field before and after a modification.
	Change struct {
		Old string `json:"old"`
		New string `json:"new"`
	}

	FieldChange struct {
		Field string
		Change
	}

	// Diff is the ordered list of the fields changed by a modification.
	// It is encoded as a JSON object, {"phone": {"old": "", "new": "+491234"}, ...}, keeping its order.
	Diff []FieldChange
)

// BuildDiff compares the cleaned current and proposed profiles on fields.
// The Diff lists the differing fields in the order of fields; it is never empty.
func BuildDiff(fields []Field, current, proposed user.Profile) (Diff, error) {
	current.Clean()
	proposed.Clean()

	diff := make(Diff, 0, len(fields))
	for _, f := range fields {
		oldVal, newVal := f.Get(current), f.Get(proposed)
		if oldVal != newVal {
			diff = append(diff, FieldChange{Field: f.Name, Change: Change{Old: oldVal, New: newVal}})
		}
	}
	if len(diff) == 0 {
		return nil, ErrNoChangesSubmitted
	}
	return diff, nil
}

// Get returns the Change of the named field.
func (d Diff) Get(field string) (Change, bool) {
	for _, fc := range d {
		if fc.Field == field {
			return fc.Change, true
		}
	}
	return Change{}, false
}

func (d Diff) Has(field string) bool {
	_, ok := d.Get(field)
	return ok
}

// Canonical returns a copy of d ordered like ExtendedFields, unknown fields last.
func (d Diff) Canonical() Diff {
	rank := func(field string) int {
		for i, f := range ExtendedFields {
			if f.Name == field {
				return i
			}
		}
		return len(ExtendedFields)
	}
	out := make(Diff, len(d))
	copy(out, d)
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i].Field) < rank(out[j].Field) })
	return out
}

// AutoAcceptable reports whether every changed field was previously empty.
func (d Diff) AutoAcceptable() bool {
	if len(d) == 0 {
		return false
	}
	for _, fc := range d {
		if fc.Old != "" {
			return false
		}
	}
	return true
}

// Apply writes every new value onto usr.
func (d Diff) Apply(usr *user.User) error {
	p := usr.Profile()
	for _, fc := range d {
		f, ok := FieldByName(fc.Field)
		if !ok {
			return errors.Wrap(ErrUnknownField, fc.Field)
		}
		f.Set(&p, fc.New)
	}
	usr.SetProfile(p)
	return nil
}

func (d Diff) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fc := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fc.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fc.Change)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Diff) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("modification diff: expected object, got %v", tok)
	}

	diff := make(Diff, 0)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("modification diff: expected field name, got %v", tok)
		}
		var change Change
		if err = dec.Decode(&change); err != nil {
			return errors.Wrapf(err, "decoding %s change", field)
		}
		diff = append(diff, FieldChange{Field: field, Change: change})
	}
	if _, err = dec.Token(); err != nil { // closing '}'
		return err
	}

	*d = diff
	return nil
}
