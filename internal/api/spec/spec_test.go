package spec

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	w := httptest.NewRecorder()
	OpenAPIHandler()(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
	for _, path := range []string{"/v1/transfers:", "/v1/admin/transactions/{id}/reverse:", "/v1/admin/reconciliation:"} {
		assert.Contains(t, w.Body.String(), path)
	}
	assert.NotEmpty(t, Document())
}
