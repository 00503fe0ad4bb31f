package complaints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func router(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api"))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Hotspots(t *testing.T) {
	w := get(router(NewService(seeded(t), nil)), "/api/hotspots")
	require.Equal(t, http.StatusOK, w.Code)

	var spots []map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spots))
	require.Len(t, spots, 4)
	assert.Equal(t, 28.6290, spots[0]["lat"])
	assert.Equal(t, 77.2190, spots[0]["lng"])
	assert.Equal(t, 120.0, spots[0]["weight"])
}

func TestHandler_MuleHistory(t *testing.T) {
	w := get(router(NewService(seeded(t), nil)), "/api/mule_history?mule_id=MULE_RINGLEADER_01")
	require.Equal(t, http.StatusOK, w.Code)

	var trail []HistoryPoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trail))
	require.Len(t, trail, 3)
	assert.Equal(t, "2024-03-01 10:00:00", trail[0].Time)
	assert.Equal(t, "ATM_DEL_01", trail[0].ATM)
	assert.Equal(t, int64(90000), trail[0].Amount)
}

func TestHandler_MuleHistoryMissingParam(t *testing.T) {
	for _, path := range []string{"/api/mule_history", "/api/mule_history?mule_id=%20"} {
		w := get(router(NewService(failingStore{NewMemoryStore()}, nil)), path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), "missing_parameter")
	}
}

func TestHandler_StoreUnavailable(t *testing.T) {
	r := router(NewService(failingStore{NewMemoryStore()}, nil))

	for _, path := range []string{"/api/hotspots", "/api/mule_history?mule_id=A"} {
		w := get(r, path)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Contains(t, w.Body.String(), "store_unavailable")
	}
}
