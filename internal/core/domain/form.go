package domain

import "fmt"

const (
	FieldName  = "name"
	FieldEmail = "email"
)

// FormRecord is the shared name/email record replicated between both peers.
type FormRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (f FormRecord) IsEmpty() bool {
	return f == FormRecord{}
}

// With returns a copy of f with field set to value.
func (f FormRecord) With(field, value string) (FormRecord, error) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return f, nil
}
