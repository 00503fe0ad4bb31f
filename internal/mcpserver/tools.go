package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Descriptions are what the LLM reads to pick a tool.

var ToolGetHotspots = mcp.NewTool("get_hotspots",
	mcp.WithDescription(
		"List recent mule-account withdrawal hotspots. "+
			"Each point has a latitude, longitude and a weight proportional to the amount withdrawn. "+
			"Use this for an overview of where fraud cash-outs are concentrated."),
	mcp.WithNumber("limit",
		mcp.Description("Only show the first N points (default 20)")),
)

var ToolGetMuleHistory = mcp.NewTool("get_mule_history",
	mcp.WithDescription(
		"Show the withdrawal trail of one mule account in time order: location, time, amount and ATM."),
	mcp.WithString("mule_id",
		mcp.Required(),
		mcp.Description("The mule account id (e.g. 'MULE_RINGLEADER_01')")),
)

var ToolPredictNextLocation = mcp.NewTool("predict_next_location",
	mcp.WithDescription(
		"Predict where a mule account is likely to withdraw next, given its current location. "+
			"Hour and day default to the server's current time."),
	mcp.WithString("mule_id",
		mcp.Required(),
		mcp.Description("The mule account id")),
	mcp.WithNumber("current_lat",
		mcp.Required(),
		mcp.Description("Latitude of the latest withdrawal")),
	mcp.WithNumber("current_long",
		mcp.Required(),
		mcp.Description("Longitude of the latest withdrawal")),
	mcp.WithNumber("hour",
		mcp.Description("Hour of day, 0-23")),
	mcp.WithNumber("day",
		mcp.Description("Day of week, 0-6 with Monday = 0")),
)

var ToolProcessTransaction = mcp.NewTool("process_transaction",
	mcp.WithDescription(
		"Run a proposed withdrawal through the interception engine. "+
			"Returns APPROVED, BLOCKED (account already frozen) or INTERCEPTED (account frozen now and police alerted). "+
			"This can freeze a real account; only call it when asked to."),
	mcp.WithString("mule_id",
		mcp.Required(),
		mcp.Description("The account attempting the withdrawal")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Withdrawal amount in whole currency units")),
	mcp.WithNumber("lat",
		mcp.Required(),
		mcp.Description("Latitude of the ATM")),
	mcp.WithNumber("long",
		mcp.Required(),
		mcp.Description("Longitude of the ATM")),
)
