package address

import "strings"

// Field names an updatable address attribute.
type Field string

const (
	FieldAddress    Field = "address"
	FieldCity       Field = "city"
	FieldDepartment Field = "department"
	FieldCountry    Field = "country"
	FieldIsDefault  Field = "is_default"
)

// textFields is also the allow-list of columns an update may touch.
var textFields = []Field{FieldAddress, FieldCity, FieldDepartment, FieldCountry}

// Patch is a field mask: only the fields set on it are written. A field that
// was never set is left alone, so "not supplied" can't be confused with
// "cleared".
type Patch struct {
	text      map[Field]string
	isDefault *bool
}

func NewPatch() *Patch {
	return &Patch{text: make(map[Field]string)}
}

// Set records a new value for one of the text fields. Service.Update rejects
// a patch naming an unknown field with a validation error.
func (p *Patch) Set(field Field, value string) *Patch {
	if p.text == nil {
		p.text = make(map[Field]string)
	}
	p.text[field] = value
	return p
}

func (p *Patch) SetDefault(isDefault bool) *Patch {
	p.isDefault = &isDefault
	return p
}

func (p *Patch) Len() int {
	if p == nil {
		return 0
	}
	n := len(p.text)
	if p.isDefault != nil {
		n++
	}
	return n
}

func (p *Patch) Text(field Field) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.text[field]
	return v, ok
}

func (p *Patch) Default() (bool, bool) {
	if p == nil || p.isDefault == nil {
		return false, false
	}
	return *p.isDefault, true
}

// columns returns the text columns and trimmed values in a stable order.
func (p *Patch) columns() ([]string, []any) {
	var columns []string
	var values []any
	for _, field := range textFields {
		if v, ok := p.text[field]; ok {
			columns = append(columns, string(field))
			values = append(values, strings.TrimSpace(v))
		}
	}
	return columns, values
}

func isTextField(field Field) bool {
	for _, f := range textFields {
		if f == field {
			return true
		}
	}
	return false
}
