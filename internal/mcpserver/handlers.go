package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleGetHotspots lists recent withdrawal hotspots.
func (h *Handlers) HandleGetHotspots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.Hotspots(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get hotspots: %v", err)), nil
	}

	text, err := formatHotspots(raw, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse hotspots: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetMuleHistory shows one account's trail.
func (h *Handlers) HandleGetMuleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	muleID := req.GetString("mule_id", "")
	if muleID == "" {
		return mcp.NewToolResultError("mule_id is required"), nil
	}

	raw, err := h.client.History(ctx, muleID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	text, err := formatHistory(muleID, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandlePredictNextLocation asks the model for the next withdrawal site.
func (h *Handlers) HandlePredictNextLocation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	muleID := req.GetString("mule_id", "")
	if muleID == "" {
		return mcp.NewToolResultError("mule_id is required"), nil
	}
	if missing := missingArgs(req, "current_lat", "current_long"); missing != "" {
		return mcp.NewToolResultError(missing + " is required"), nil
	}

	body := PredictRequest{
		MuleID:      muleID,
		CurrentLat:  req.GetFloat("current_lat", 0),
		CurrentLong: req.GetFloat("current_long", 0),
	}
	args := req.GetArguments()
	if _, ok := args["hour"]; ok {
		hour := req.GetInt("hour", 0)
		body.Hour = &hour
	}
	if _, ok := args["day"]; ok {
		day := req.GetInt("day", 0)
		body.Day = &day
	}

	raw, err := h.client.PredictNext(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Prediction failed: %v", err)), nil
	}

	var p struct {
		Lat          float64 `json:"predicted_lat"`
		Long         float64 `json:"predicted_long"`
		Confidence   string  `json:"confidence"`
		AlertMessage string  `json:"alert_message"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse prediction: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"%s\n"+
			"Predicted location: %.4f, %.4f\n"+
			"Confidence: %s",
		p.AlertMessage, p.Lat, p.Long, p.Confidence)), nil
}

// HandleProcessTransaction submits a proposed withdrawal for a decision.
func (h *Handlers) HandleProcessTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	muleID := req.GetString("mule_id", "")
	if muleID == "" {
		return mcp.NewToolResultError("mule_id is required"), nil
	}
	if missing := missingArgs(req, "amount", "lat", "long"); missing != "" {
		return mcp.NewToolResultError(missing + " is required"), nil
	}

	raw, err := h.client.ProcessTransaction(ctx, TransactionRequest{
		MuleID: muleID,
		Amount: int64(req.GetFloat("amount", 0)),
		Lat:    req.GetFloat("lat", 0),
		Long:   req.GetFloat("long", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Transaction check failed: %v", err)), nil
	}

	var d struct {
		Status         string `json:"status"`
		Message        string `json:"message"`
		AlertStatus    string `json:"alert_status"`
		AlertReference string `json:"alert_reference"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision: %s\n", d.Status)
	fmt.Fprintf(&sb, "%s\n", d.Message)
	if d.AlertStatus != "" {
		fmt.Fprintf(&sb, "Police alert: %s", d.AlertStatus)
		if d.AlertReference != "" {
			fmt.Fprintf(&sb, " (ref %s)", d.AlertReference)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
}

func missingArgs(req mcp.CallToolRequest, names ...string) string {
	args := req.GetArguments()
	for _, n := range names {
		if _, ok := args[n]; !ok {
			return n
		}
	}
	return ""
}

// --- Formatting helpers ---

type hotspot struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

func formatHotspots(raw json.RawMessage, limit int) (string, error) {
	var points []hotspot
	if err := json.Unmarshal(raw, &points); err != nil {
		return "", err
	}
	if len(points) == 0 {
		return "No complaints recorded yet.", nil
	}

	total := 0.0
	for _, p := range points {
		total += p.Weight
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d hotspot(s), total weight %.1f (thousands withdrawn)\n\n", len(points), total)
	shown := points
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, p := range shown {
		fmt.Fprintf(&sb, "%d. %.4f, %.4f  weight %.1f\n", i+1, p.Lat, p.Lng, p.Weight)
	}
	if len(shown) < len(points) {
		fmt.Fprintf(&sb, "... and %d more\n", len(points)-len(shown))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

type historyPoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Time   string  `json:"time"`
	Amount int64   `json:"amount"`
	ATM    string  `json:"atm"`
}

func formatHistory(muleID string, raw json.RawMessage) (string, error) {
	var trail []historyPoint
	if err := json.Unmarshal(raw, &trail); err != nil {
		return "", err
	}
	if len(trail) == 0 {
		return fmt.Sprintf("No withdrawals on record for %s.", muleID), nil
	}

	var (
		sb    strings.Builder
		total int64
	)
	fmt.Fprintf(&sb, "Trail of %s (%d withdrawal(s)):\n\n", muleID, len(trail))
	for i, p := range trail {
		total += p.Amount
		fmt.Fprintf(&sb, "%d. %s  %.4f, %.4f  amount %d", i+1, p.Time, p.Lat, p.Lng, p.Amount)
		if p.ATM != "" {
			fmt.Fprintf(&sb, "  ATM %s", p.ATM)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nTotal withdrawn: %d", total)
	return sb.String(), nil
}
