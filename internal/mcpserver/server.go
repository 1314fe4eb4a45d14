// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes keyscan tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"image"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/keyscan/internal/index"
	"github.com/starford/keyscan/internal/keyservice"
)

const templateFormatURI = "keyscan://template-format"

// Server wraps the MCP server with keyscan tools.
type Server struct {
	mcp *server.MCPServer
	svc *keyservice.Service
}

// New creates a new MCP server with all keyscan tools registered.
func New(svc *keyservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Keyscan",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_octave",
		mcp.WithDescription("Return the current calibration and the pressed state of all twelve keys."),
	), s.getOctave)

	s.mcp.AddTool(mcp.NewTool("calibrate",
		mcp.WithDescription("Locate the octave in a stored frame by matching the template. "+
			"Read the template contract first via get_template_format or the "+templateFormatURI+" resource."),
		mcp.WithString("frame", mcp.Required(), mcp.Description("Name of a stored frame (e.g. calibration.png)")),
		mcp.WithNumber("anchor_x", mcp.Description("Template left edge in the frame; defaults to the configured anchor")),
		mcp.WithNumber("anchor_y", mcp.Description("Template top edge in the frame; defaults to the configured anchor")),
	), s.calibrate)

	s.mcp.AddTool(mcp.NewTool("process_frame",
		mcp.WithDescription("Sample a stored frame and report key press/release transitions."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Frame file name")),
	), s.processFrame)

	s.mcp.AddTool(mcp.NewTool("submit_frame",
		mcp.WithDescription("Store a captured frame and process it. Returns the transitions it caused."),
		mcp.WithString("data", mcp.Required(), mcp.Description("Base64 image bytes or a data:image/...;base64, URI (PNG, JPEG or GIF)")),
		mcp.WithString("name", mcp.Description("Optional file name; generated when empty")),
	), s.submitFrame)

	s.mcp.AddTool(mcp.NewTool("list_frames",
		mcp.WithDescription("List the frames stored on disk."),
	), s.listFrames)

	s.mcp.AddTool(mcp.NewTool("list_key_events",
		mcp.WithDescription("List recorded key transitions, newest first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 100)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
		mcp.WithNumber("code", mcp.Description("Only events for this absolute note code")),
	), s.listKeyEvents)

	s.mcp.AddTool(mcp.NewTool("get_template_format",
		mcp.WithDescription("Returns the template and frame format contract."),
	), s.getTemplateFormat)

	s.mcp.AddResource(
		mcp.NewResource(templateFormatURI, "Template Format Contract",
			mcp.WithResourceDescription("How templates, anchors and frames are laid out for octave detection."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTemplateFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) getOctave(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := s.svc.Octave(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view), nil
}

func (s *Server) calibrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frame, err := req.RequireString("frame")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	_, hasX := args["anchor_x"]
	_, hasY := args["anchor_y"]
	if hasX != hasY {
		return mcp.NewToolResultError("anchor_x and anchor_y must be set together"), nil
	}
	var anchor *image.Point
	if hasX {
		anchor = &image.Point{X: req.GetInt("anchor_x", 0), Y: req.GetInt("anchor_y", 0)}
	}

	view, err := s.svc.Calibrate(ctx, frame, anchor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view), nil
}

func (s *Server) processFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ProcessFrame(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listFrames(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.ListFrames(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(metas) == 0 {
		return mcp.NewToolResultText("no frames found"), nil
	}
	return jsonResult(metas), nil
}

func (s *Server) listKeyEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := index.EventFilter{
		Limit:  req.GetInt("limit", 0),
		Offset: req.GetInt("offset", 0),
	}
	if _, ok := req.GetArguments()["code"]; ok {
		code := req.GetInt("code", 0)
		filter.Code = &code
	}
	events, total, err := s.svc.Events(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"events": events,
		"total":  total,
	}), nil
}

func (s *Server) getTemplateFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TemplateFormatContract), nil
}

func (s *Server) readTemplateFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      templateFormatURI,
			MIMEType: "text/markdown",
			Text:     TemplateFormatContract,
		},
	}, nil
}
