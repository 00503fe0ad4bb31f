package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server with every investigator tool registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("muletrace", "1.0.0")
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolGetHotspots, h.HandleGetHotspots)
	s.AddTool(ToolGetMuleHistory, h.HandleGetMuleHistory)
	s.AddTool(ToolPredictNextLocation, h.HandlePredictNextLocation)
	s.AddTool(ToolProcessTransaction, h.HandleProcessTransaction)

	return s
}
