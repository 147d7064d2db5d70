package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gormscope/gormscope/internal/api/middleware"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/store"
)

// SetupTestRouter returns a test-mode router whose routes run inside a
// database session on a fresh in-memory database
func SetupTestRouter(t *testing.T) (*gin.Engine, *database.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := store.SetupTestDB(t)
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.ErrorHandler(false), middleware.DBSession(db))
	return r, db
}

// CreateTestContext returns a bare gin context and its recorder
func CreateTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// CreateTestRequest builds a request, encoding a non-nil body as JSON
func CreateTestRequest(method, url string, body any) *http.Request {
	if body == nil {
		return httptest.NewRequest(method, url, nil)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeJSON checks the content type and decodes the body into a map
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

// AssertJSONResponse checks the status and that every key of want appears
// in the body with the same JSON value. Extra keys are ignored.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, status int, want map[string]any) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	body := decodeJSON(t, w)

	// round-trip want so numbers compare as float64 like the decoded body
	raw, err := json.Marshal(want)
	require.NoError(t, err)
	var expected map[string]any
	require.NoError(t, json.Unmarshal(raw, &expected))
	for k, v := range expected {
		assert.Equal(t, v, body[k], "key %q", k)
	}
}

// AssertErrorResponse checks the status and the {code, message} error body
// rendered by middleware.ErrorHandler
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	body := decodeJSON(t, w)
	assert.NotEmpty(t, body["code"], "error body: %v", body)
	assert.NotEmpty(t, body["message"], "error body: %v", body)
}
