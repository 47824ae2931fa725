package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators(t *testing.T) {
	validate, translator := validator.New(), NewTranslator()
	InitValidators(validate, translator)

	type form struct {
		Username string `json:"username" validate:"required,alphanum_"`
		Code     string `json:"code" validate:"omitempty,coursecode"`
		Role     string `json:"role" validate:"omitempty,oneof=student teacher"`
	}

	tests := []struct {
		name    string
		form    form
		wantErr map[string]string
	}{
		{name: "valid", form: form{Username: "hero_01", Code: "MATH-2B", Role: "teacher"}},
		{name: "required", form: form{}, wantErr: map[string]string{"username": "this field is required"}},
		{
			name:    "custom tags",
			form:    form{Username: "hero 01", Code: "CS 101", Role: "janitor"},
			wantErr: map[string]string{"username": alphaNumUnderText, "code": courseCodeText, "role": oneOfText},
		},
		{name: "dangling dash", form: form{Username: "hero", Code: "CS-"}, wantErr: map[string]string{"code": courseCodeText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.form)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.ErrorAs(t, err, &vErrs)
			assert.Equal(t, tt.wantErr, TranslateValidationErrors(vErrs, translator))
		})
	}
}

func TestOrderBy(t *testing.T) {
	columns := map[string]string{"name": "u.name", "created_at": "u.created_at"}

	tests := []struct {
		name      string
		orderings []DBOrdering
		want      string
	}{
		{name: "fallback", want: "u.id ASC"},
		{name: "unknown fields are dropped", orderings: []DBOrdering{{Field: "password"}}, want: "u.id ASC"},
		{
			name:      "mapped",
			orderings: []DBOrdering{{Field: "created_at"}, {Field: "name", Ascending: true}},
			want:      "u.created_at DESC, u.name ASC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderBy(tt.orderings, columns, "u.id ASC"))
		})
	}
}
