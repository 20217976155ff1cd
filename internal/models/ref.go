package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Ref points at another record. The API sends it either as a bare identifier or as an
// expanded object that carries the identifier under "_id".
type Ref struct {
	ID        string
	Name      string
	Email     string
	ClassName string
	expanded  bool
}

// NewRef builds a bare reference.
func NewRef(id string) Ref {
	return Ref{ID: strings.TrimSpace(id)}
}

// Expanded reports whether the reference arrived as an object.
func (r Ref) Expanded() bool {
	return r.expanded
}

// IsZero reports whether the reference carries no identifier.
func (r Ref) IsZero() bool {
	return strings.TrimSpace(r.ID) == ""
}

// Matches compares references by identifier value.
func (r Ref) Matches(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && strings.TrimSpace(r.ID) == id
}

// Label returns the most human-friendly text available for the reference.
func (r Ref) Label() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.ClassName != "":
		return r.ClassName
	case r.Email != "":
		return r.Email
	default:
		return r.ID
	}
}

type refObject struct {
	ID        string `json:"_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	ClassName string `json:"classname,omitempty"`
}

// MarshalJSON emits the bare identifier unless the reference was expanded.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.expanded {
		return json.Marshal(r.ID)
	}
	return json.Marshal(refObject{ID: r.ID, Name: r.Name, Email: r.Email, ClassName: r.ClassName})
}

// UnmarshalJSON accepts a string, an object with "_id", or null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = Ref{}
		return nil
	}

	if trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*r = NewRef(id)
		return nil
	}

	var obj refObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("invalid reference: %w", err)
	}

	*r = Ref{
		ID:        strings.TrimSpace(obj.ID),
		Name:      obj.Name,
		Email:     obj.Email,
		ClassName: obj.ClassName,
		expanded:  true,
	}
	return nil
}

// Value stores only the identifier.
func (r Ref) Value() (driver.Value, error) {
	return r.ID, nil
}

// Scan reads a stored identifier back into a bare reference.
func (r *Ref) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = Ref{}
	case string:
		*r = NewRef(v)
	case []byte:
		*r = NewRef(string(v))
	default:
		return fmt.Errorf("unsupported reference type %T", value)
	}
	return nil
}

// Expand returns a copy marked as expanded with the supplied display fields.
func (r Ref) Expand(name, email string) Ref {
	r.Name = name
	r.Email = email
	r.expanded = true
	return r
}

// ExpandClass returns a copy marked as expanded with the class display name.
func (r Ref) ExpandClass(className string) Ref {
	r.ClassName = className
	r.expanded = true
	return r
}
