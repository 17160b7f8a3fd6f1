package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer s3cret", want: "s3cret"},
		{name: "surrounding space trimmed", header: "Bearer  s3cret ", want: "s3cret"},
		{name: "missing", wantErr: errNoAuthorization},
		{name: "basic auth", header: "Basic abc", wantErr: errNotBearer},
		{name: "lowercase scheme", header: "bearer s3cret", wantErr: errNotBearer},
		{name: "blank token", header: "Bearer   ", wantErr: errEmptyBearer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/invocations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := bearerToken(req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, tokenMatches("s3cret", "s3cret"))
	assert.False(t, tokenMatches("s3cre", "s3cret"))
	assert.False(t, tokenMatches("", ""))
	assert.False(t, tokenMatches("anything", ""))
}

func TestRequireTokenOpenWithoutConfiguredToken(t *testing.T) {
	t.Parallel()

	server := newTestServer(&mockInvoker{}, &mockHistory{})
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/invocations", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
