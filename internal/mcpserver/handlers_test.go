package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	h := NewHandlers(NewClient(Config{APIURL: ts.URL}))
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================
// Client tests
// ============================================================

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "model_unavailable",
			"message": "Model not loaded",
		})
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.PredictNext(context.Background(), PredictRequest{MuleID: "M1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model_unavailable")
	assert.Contains(t, err.Error(), "Model not loaded")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	_, err := client.Hotspots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.Hotspots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_HistoryEscapesQuery(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("mule_id")
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).History(context.Background(), "MULE A&B")
	require.NoError(t, err)
	assert.Equal(t, "MULE A&B", got)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleGetHotspots(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/hotspots", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"lat": 28.6315, "lng": 77.2167, "weight": 80.0},
			{"lat": 19.0760, "lng": 72.8777, "weight": 12.5},
			{"lat": 12.9716, "lng": 77.5946, "weight": 1.0},
		})
	}))
	defer done()

	result, err := h.HandleGetHotspots(context.Background(), makeRequest(map[string]any{"limit": float64(2)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "3 hotspot(s), total weight 93.5")
	assert.Contains(t, text, "1. 28.6315, 77.2167  weight 80.0")
	assert.Contains(t, text, "... and 1 more")
	assert.NotContains(t, text, "12.9716")
}

func TestHandleGetHotspots_Empty(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer done()

	result, err := h.HandleGetHotspots(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No complaints recorded yet.", resultText(t, result))
}

func TestHandleGetMuleHistory(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MULE_RINGLEADER_01", r.URL.Query().Get("mule_id"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"lat": 28.6315, "lng": 77.2167, "time": "2024-03-01 10:15:00", "amount": 40000, "atm": "ATM_9"},
			{"lat": 28.6129, "lng": 77.2295, "time": "2024-03-01 13:40:00", "amount": 25000, "atm": ""},
		})
	}))
	defer done()

	result, err := h.HandleGetMuleHistory(context.Background(), makeRequest(map[string]any{"mule_id": "MULE_RINGLEADER_01"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Trail of MULE_RINGLEADER_01 (2 withdrawal(s))")
	assert.Contains(t, text, "1. 2024-03-01 10:15:00  28.6315, 77.2167  amount 40000  ATM ATM_9")
	assert.Contains(t, text, "Total withdrawn: 65000")
}

func TestHandleGetMuleHistory_MissingID(t *testing.T) {
	h := NewHandlers(NewClient(Config{APIURL: "http://127.0.0.1:1"}))
	result, err := h.HandleGetMuleHistory(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "mule_id is required")
}

func TestHandlePredictNextLocation(t *testing.T) {
	var body map[string]any
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/predict_next", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{
			"predicted_lat":  28.6129,
			"predicted_long": 77.2295,
			"confidence":     "High",
			"alert_message":  "Suspect likely moving towards Lat: 28.6129, Lng: 77.2295",
		})
	}))
	defer done()

	result, err := h.HandlePredictNextLocation(context.Background(), makeRequest(map[string]any{
		"mule_id":      "MULE_RINGLEADER_01",
		"current_lat":  28.6315,
		"current_long": 77.2167,
		"hour":         float64(14),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, float64(14), body["hour"])
	_, hasDay := body["day"]
	assert.False(t, hasDay, "day should be omitted when not given")

	text := resultText(t, result)
	assert.Contains(t, text, "Suspect likely moving towards")
	assert.Contains(t, text, "Confidence: High")
}

func TestHandlePredictNextLocation_MissingCoordinates(t *testing.T) {
	h := NewHandlers(NewClient(Config{APIURL: "http://127.0.0.1:1"}))
	result, err := h.HandlePredictNextLocation(context.Background(), makeRequest(map[string]any{
		"mule_id":     "M1",
		"current_lat": 28.6,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "current_long is required")
}

func TestHandlePredictNextLocation_ModelUnavailable(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "model_unavailable", "message": "Model not loaded",
		})
	}))
	defer done()

	result, err := h.HandlePredictNextLocation(context.Background(), makeRequest(map[string]any{
		"mule_id": "M1", "current_lat": 28.6, "current_long": 77.2,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Model not loaded")
}

func TestHandleProcessTransaction_Intercepted(t *testing.T) {
	var body map[string]any
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/process_transaction", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "INTERCEPTED",
			"message":         "Account frozen. Police alerted.",
			"alert_status":    "sent",
			"alert_reference": "alrt_abc",
		})
	}))
	defer done()

	result, err := h.HandleProcessTransaction(context.Background(), makeRequest(map[string]any{
		"mule_id": "MULE_RINGLEADER_01", "amount": float64(80000), "lat": 28.6, "long": 77.2,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, float64(80000), body["amount"])
	text := resultText(t, result)
	assert.Contains(t, text, "Decision: INTERCEPTED")
	assert.Contains(t, text, "Police alert: sent (ref alrt_abc)")
}

func TestHandleProcessTransaction_Approved(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "APPROVED", "message": "Transaction approved."})
	}))
	defer done()

	result, err := h.HandleProcessTransaction(context.Background(), makeRequest(map[string]any{
		"mule_id": "MULE_RANDOM_42", "amount": float64(1000), "lat": 19.07, "long": 72.87,
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Decision: APPROVED")
	assert.NotContains(t, text, "Police alert")
}

func TestHandleProcessTransaction_MissingAmount(t *testing.T) {
	h := NewHandlers(NewClient(Config{APIURL: "http://127.0.0.1:1"}))
	result, err := h.HandleProcessTransaction(context.Background(), makeRequest(map[string]any{
		"mule_id": "M1", "lat": 1.0, "long": 2.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "amount is required")
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
