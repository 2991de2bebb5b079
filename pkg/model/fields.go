package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid node fields")

// ValidationError describes a rejected field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// OptionalRef is a relationship field in a write request. It distinguishes
// "not sent" (Set == false) from "explicitly cleared" (Set, ID == nil).
type OptionalRef struct {
	Set bool
	ID  *int64
}

// SetRef returns an OptionalRef pointing at id.
func SetRef(id int64) OptionalRef { return OptionalRef{Set: true, ID: &id} }

// ClearRef returns an OptionalRef that clears the relationship.
func ClearRef() OptionalRef { return OptionalRef{Set: true} }

// RefFrom returns an OptionalRef carrying p, which may be nil.
func RefFrom(p *int64) OptionalRef { return OptionalRef{Set: true, ID: cloneRef(p)} }

// IsZero lets encoding/json omit unsent refs with omitzero.
func (r OptionalRef) IsZero() bool { return !r.Set }

func (r OptionalRef) MarshalJSON() ([]byte, error) {
	if r.ID == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*r.ID)
}

func (r *OptionalRef) UnmarshalJSON(data []byte) error {
	r.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		r.ID = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	r.ID = &id
	return nil
}

// NodeFields is the write contract for create and update. Absent pointer
// fields are left untouched on update.
type NodeFields struct {
	Value        *int64      `json:"value,omitempty"`
	Name         *string     `json:"name,omitempty" validate:"omitempty,max=255"`
	Type         *NodeType   `json:"type,omitempty" validate:"omitempty,nodetype"`
	ParentID     OptionalRef `json:"parent_id,omitzero"`
	LeftChildID  OptionalRef `json:"left_child_id,omitzero"`
	RightChildID OptionalRef `json:"right_child_id,omitzero"`
}

// FieldsFrom builds a full write request from an existing node.
func FieldsFrom(n Node) NodeFields {
	value := n.Value
	name := n.Name
	typ := n.Type
	return NodeFields{
		Value:        &value,
		Name:         &name,
		Type:         &typ,
		ParentID:     RefFrom(n.ParentID),
		LeftChildID:  RefFrom(n.LeftChildID),
		RightChildID: RefFrom(n.RightChildID),
	}
}

// Validate checks a create request: value is required.
func (f NodeFields) Validate() error {
	if f.Value == nil {
		return Invalid("value", "value is required")
	}
	return f.ValidatePatch()
}

// ValidatePatch checks an update request, where every field is optional.
func (f NodeFields) ValidatePatch() error {
	if err := fieldValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "nodetype":
				return Invalid(fe.Field(), "type must be 'input', 'process', or 'output'")
			case "max":
				return Invalid(fe.Field(), "must be at most %s characters", fe.Param())
			}
			return Invalid(fe.Field(), "failed %s validation", fe.Tag())
		}
		return err
	}
	return nil
}

// ParseValue parses the integer value typed into a form.
func ParseValue(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, Invalid("value", "Value must be an integer")
	}
	return v, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
			t := NodeType(fl.Field().String())
			return t == TypeNone || t.IsValid()
		})
	})
	return validate
}
