package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewBody struct {
	Rating  int      `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string   `json:"comment" validate:"required"`
	Title   string   `json:"title" validate:"max=10"`
	Images  []string `json:"images" validate:"omitempty,dive,url"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(reviewBody{Rating: 4, Comment: "solid"})
	assert.NoError(t, err)
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(reviewBody{Rating: 9})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be less than or equal to 5", fields["rating"])
	assert.Equal(t, "is required", fields["comment"])
	assert.Contains(t, err.Error(), "field 'comment' is required")
}

func TestValidate_DiveIntoImages(t *testing.T) {
	err := Validate(reviewBody{Rating: 3, Comment: "ok", Images: []string{"not a url"}})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid URL", valErr.Fields()["images[0]"])
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":5,"comment":"great"}`))
	var body reviewBody
	require.NoError(t, DecodeAndValidate(req, &body))
	assert.Equal(t, 5, body.Rating)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":5,"comment":"x","bogus":1}`))
	err := DecodeAndValidate(req, &reviewBody{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
