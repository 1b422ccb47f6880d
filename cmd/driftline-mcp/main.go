// driftline-mcp exposes the persona simulator as an MCP stdio server.
//
// Environment variables:
//
//	DRIFTLINE_CONFIG    YAML config file (default: ./driftline.yaml, optional)
//	DRIFTLINE_DB_PATH   SQLite transcript path (default: ./data/driftline.db)
//	OLLAMA_MODEL        enables the hosted Ollama backend
//	GEMINI_API_KEY      enables the hosted Gemini backend
//	ANTHROPIC_API_KEY   enables the remote backend
//
// Usage:
//
//	go install github.com/goblincore/driftline/cmd/driftline-mcp
//	driftline-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goblincore/driftline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

func main() {
	// stdout carries the protocol, so logs go to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	path := os.Getenv("DRIFTLINE_CONFIG")
	if path == "" {
		path = "./driftline.yaml"
	}
	cfg, err := driftline.LoadConfig(path)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	cfg.Logger = logger

	ctx := context.Background()
	sim, err := driftline.Init(ctx, cfg)
	if err != nil {
		logger.Fatal("driftline init", zap.Error(err))
	}
	defer sim.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "driftline-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_personas",
		Description: "List the personas and scenarios available for practice sessions.",
	}, listHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a practice session with a persona. Returns the session ID and the persona's starting state.",
	}, startHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "respond",
		Description: "Send the student's message and get the client's in-character reply, updated emotional state and a teaching note.",
	}, respondHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shift_context",
		Description: "Apply a life-context scenario (e.g. a bad day at work) to the client's emotional state.",
	}, shiftHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_state",
		Description: "Inspect the client's current emotional state, mode and memory.",
	}, stateHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest",
		Description: "Suggest therapeutic responses for the student's next turn.",
	}, suggestHandler(sim))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "end_session",
		Description: "End a session and return its assessment report.",
	}, endHandler(sim))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("driftline-mcp", zap.Error(err))
	}
}

// --- Input types ---

type listInput struct{}

type startInput struct {
	Persona string `json:"persona" jsonschema:"Persona catalog ID or name, e.g. jack"`
}

type respondInput struct {
	SessionID string `json:"session_id"      jsonschema:"Session ID from start_session"`
	Message   string `json:"message"         jsonschema:"What the student says"`
	Force     string `json:"force,omitempty" jsonschema:"Optional: AI to require a model backend, Templates for the local template system"`
}

type shiftInput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID"`
	Scenario  string `json:"scenario"   jsonschema:"Scenario name from list_personas"`
}

type sessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID"`
}

type endInput struct {
	SessionID string `json:"session_id"             jsonschema:"Session ID"`
	Student   string `json:"student_name,omitempty" jsonschema:"Optional student name for the report"`
}

// --- Handlers ---

func listHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, listInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input listInput) (*mcp.CallToolResult, any, error) {
		return textResult(jsonString(map[string]any{
			"personas":  sim.Personas(),
			"scenarios": driftline.ScenarioNames(sim.Scenarios()),
			"backends":  sim.Dispatcher().Availability().String(),
		})), nil, nil
	}
}

func startHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, startInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input startInput) (*mcp.CallToolResult, any, error) {
		s, err := sim.StartSession(input.Persona)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"session_id": s.ID(),
			"persona":    s.Persona().Name,
			"state":      s.State(),
		})), nil, nil
	}
}

func respondHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, respondInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input respondInput) (*mcp.CallToolResult, any, error) {
		forced, err := driftline.ParseForcedMode(input.Force)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		res, err := sim.Respond(ctx, input.SessionID, input.Message, forced)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"reply":         res.Reply,
			"mode":          res.Mode,
			"state":         res.State,
			"teaching_note": res.TeachingNote,
			"strategy":      res.Strategy,
			"backend":       res.Backend,
		})), nil, nil
	}
}

func shiftHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, shiftInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input shiftInput) (*mcp.CallToolResult, any, error) {
		st, err := sim.ShiftContext(input.SessionID, input.Scenario)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"scenario": input.Scenario,
			"mode":     st.Mode,
			"state":    st,
		})), nil, nil
	}
}

func stateHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, sessionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input sessionInput) (*mcp.CallToolResult, any, error) {
		s, err := sim.Session(input.SessionID)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"persona":  s.Persona().Name,
			"scenario": s.ActiveScenario(),
			"turns":    len(s.Turns()),
			"state":    s.State(),
		})), nil, nil
	}
}

func suggestHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, sessionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input sessionInput) (*mcp.CallToolResult, any, error) {
		groups, err := sim.Suggest(input.SessionID)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(driftline.FormatSuggestions(groups)), nil, nil
	}
}

func endHandler(sim *driftline.Simulator) func(context.Context, *mcp.CallToolRequest, endInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input endInput) (*mcp.CallToolResult, any, error) {
		report, err := sim.EndSession(input.SessionID, input.Student)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(report)), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
