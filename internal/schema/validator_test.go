package schema

import (
	"errors"
	"testing"
)

type sample struct {
	Name  *string `json:"name" validate:"required"`
	Kind  string  `json:"kind" validate:"omitempty,oneof=a b"`
	Label string  `json:"label" validate:"max=3"`
}

func TestValidate(t *testing.T) {
	name := ""
	tests := []struct {
		name      string
		in        sample
		wantField string
		wantTag   string
	}{
		{name: "valid with empty string pointer", in: sample{Name: &name}},
		{name: "missing pointer", in: sample{}, wantField: "name", wantTag: "required"},
		{name: "bad enum", in: sample{Name: &name, Kind: "c"}, wantField: "kind", wantTag: "oneof"},
		{name: "too long", in: sample{Name: &name, Label: "abcd"}, wantField: "label", wantTag: "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tt.wantField || fe.Tag != tt.wantTag {
				t.Errorf("got field=%s tag=%s, want field=%s tag=%s", fe.Field, fe.Tag, tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestFieldError_Message(t *testing.T) {
	err := &FieldError{Field: "text", Tag: "required"}
	if err.Error() != `missing required field "text"` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
