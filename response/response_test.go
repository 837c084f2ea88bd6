package response

import (
	"net/http"
	"testing"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   int    `json:"id" xml:"id"`
	Name string `json:"name" xml:"name"`
}

func header(contentType string) http.Header {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		status      int
		body        string
		wantMessage string
	}{
		{"json message", "application/json; charset=utf-8", 500, `{"message":"database offline"}`, "database offline"},
		{"json nested error", "application/json", 400, `{"error":{"message":"bad field"}}`, "bad field"},
		{"json oauth error", "application/json", 400, `{"error":"invalid_grant","error_description":"refresh token expired"}`, "refresh token expired"},
		{"json unparsable", "application/json", 502, `not json`, "Bad Gateway"},
		{"xml", "application/xml", 500, `<error><code>E1</code><detail>broken</detail></error>`, "E1; broken"},
		{"html", "text/html", 503, `<html><head><title>Down</title></head><body><p>Try <a href="https://status.example.com">later</a></p></body></html>`, "Down; Try [Link: https://status.example.com] later"},
		{"text", "text/plain", 404, "no such post\n", "no such post"},
		{"unknown type", "application/octet-stream", 418, "", "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseErrorResponse(http.MethodGet, "https://example.com/posts", tt.status, header(tt.contentType), []byte(tt.body))
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, http.MethodGet, err.Method)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Equal(t, tt.body, err.RawResponse)
			assert.ErrorIs(t, err, apierrors.ErrServer)
		})
	}
}

func TestParseErrorResponseTruncatesRawBody(t *testing.T) {
	body := make([]byte, maxRawResponse+100)
	for i := range body {
		body[i] = 'x'
	}
	err := ParseErrorResponse(http.MethodGet, "/", 500, header("text/plain"), body)
	assert.Len(t, err.RawResponse, maxRawResponse)
}

func TestDecodeJSON(t *testing.T) {
	users, err := Decode[[]user]("application/json; charset=utf-8", []byte(`[{"id":1,"name":"Leanne"},{"id":2,"name":"Ervin"}]`))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ervin", users[1].Name)
}

func TestDecodeWithoutContentTypeAssumesJSON(t *testing.T) {
	u, err := Decode[user]("", []byte(`{"id":7,"name":"Kurtis"}`))
	require.NoError(t, err)
	assert.Equal(t, 7, u.ID)
}

func TestDecodeXML(t *testing.T) {
	u, err := Decode[user]("text/xml", []byte(`<user><id>3</id><name>Clementine</name></user>`))
	require.NoError(t, err)
	assert.Equal(t, "Clementine", u.Name)
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"shape mismatch", "application/json", `{"id":"not-a-number"}`},
		{"empty body", "application/json", ``},
		{"unsupported type", "text/csv", `id,name`},
		{"garbage", "application/json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[user](tt.contentType, []byte(tt.body))
			assert.ErrorIs(t, err, apierrors.ErrDecoding)
			var decodingErr *apierrors.DecodingError
			assert.ErrorAs(t, err, &decodingErr)
		})
	}
}

func TestParseContentTypeHeader(t *testing.T) {
	mimeType, params := ParseContentTypeHeader(`multipart/form-data; boundary=something; charset="utf-8"`)
	assert.Equal(t, "multipart/form-data", mimeType)
	assert.Equal(t, map[string]string{"boundary": "something", "charset": "utf-8"}, params)

	mimeType, params = ParseContentTypeHeader("application/json")
	assert.Equal(t, "application/json", mimeType)
	assert.Empty(t, params)
}
