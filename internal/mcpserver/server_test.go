package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/keyscan/internal/detector"
	"github.com/starford/keyscan/internal/frames"
	"github.com/starford/keyscan/internal/keyservice"
	"github.com/starford/keyscan/internal/testutil"
)

func testServer(t *testing.T) (*Server, frames.Provider) {
	t.Helper()
	_, store := testutil.TestFrames(t)
	db := testutil.TestDB(t)
	svc := keyservice.New(store, db, testutil.Template(),
		keyservice.WithConfig(keyservice.Config{
			Anchor:         testutil.Anchor,
			BaseOctave:     detector.DefaultBaseOctave,
			PressThreshold: detector.DefaultThreshold,
		}))
	return New(svc), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_octave":
		result, err = srv.getOctave(ctx, req)
	case "calibrate":
		result, err = srv.calibrate(ctx, req)
	case "process_frame":
		result, err = srv.processFrame(ctx, req)
	case "submit_frame":
		result, err = srv.submitFrame(ctx, req)
	case "list_frames":
		result, err = srv.listFrames(ctx, req)
	case "list_key_events":
		result, err = srv.listKeyEvents(ctx, req)
	case "get_template_format":
		result, err = srv.getTemplateFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func calibrated(t *testing.T) (*Server, frames.Provider) {
	t.Helper()
	srv, store := testServer(t)
	if err := store.Write("calib.png", testutil.PNG(t, testutil.KeyboardFrame())); err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "calibrate", map[string]any{"frame": "calib.png"})
	if r.IsError {
		t.Fatalf("calibrate: %s", resultText(r))
	}
	return srv, store
}

func TestGetOctave_NotCalibrated(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_octave", map[string]any{})
	if !r.IsError {
		t.Error("expected error before calibration")
	}
}

func TestCalibrateAndGetOctave(t *testing.T) {
	srv, _ := calibrated(t)
	r := callTool(t, srv, "get_octave", map[string]any{})
	if r.IsError {
		t.Fatalf("get_octave: %s", resultText(r))
	}
	var view keyservice.OctaveView
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(view.Keys) != 12 || view.Calibration.Source != "calib.png" {
		t.Errorf("view = %+v", view)
	}
}

func TestCalibrate_ExplicitAnchor(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("calib.png", testutil.PNG(t, testutil.KeyboardFrame()))

	r := callTool(t, srv, "calibrate", map[string]any{"frame": "calib.png", "anchor_x": float64(10)})
	if !r.IsError {
		t.Error("expected error for a half anchor")
	}

	r = callTool(t, srv, "calibrate", map[string]any{
		"frame":    "calib.png",
		"anchor_x": float64(testutil.Anchor.X),
		"anchor_y": float64(testutil.Anchor.Y),
	})
	if r.IsError {
		t.Fatalf("calibrate: %s", resultText(r))
	}

	r = callTool(t, srv, "calibrate", map[string]any{"frame": "calib.png", "anchor_x": 500, "anchor_y": 500})
	if !r.IsError {
		t.Error("expected out-of-bounds error")
	}
}

func TestSubmitFrame(t *testing.T) {
	srv, store := calibrated(t)
	data := base64.StdEncoding.EncodeToString(testutil.PNG(t, testutil.KeyboardFrame(6)))

	r := callTool(t, srv, "submit_frame", map[string]any{"data": data, "name": "sharp.png"})
	if r.IsError {
		t.Fatalf("submit_frame: %s", resultText(r))
	}
	var res keyservice.FrameResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].Name != "F# 4" {
		t.Errorf("transitions = %+v", res.Transitions)
	}
	if _, err := store.Read("sharp.png"); err != nil {
		t.Errorf("frame not stored: %v", err)
	}

	r = callTool(t, srv, "submit_frame", map[string]any{"data": data, "name": "sharp.png"})
	if !r.IsError {
		t.Error("expected error for duplicate frame")
	}
}

func TestSubmitFrame_DataURIGeneratesName(t *testing.T) {
	srv, store := calibrated(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG(t, testutil.KeyboardFrame()))

	r := callTool(t, srv, "submit_frame", map[string]any{"data": uri})
	if r.IsError {
		t.Fatalf("submit_frame: %s", resultText(r))
	}
	var res keyservice.FrameResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if !strings.HasSuffix(res.Name, ".png") || len(res.Name) <= len(".png") {
		t.Errorf("generated name = %q", res.Name)
	}
	if _, err := store.Read(res.Name); err != nil {
		t.Errorf("frame not stored: %v", err)
	}
}

func TestSubmitFrame_Rejected(t *testing.T) {
	srv, _ := calibrated(t)
	png := base64.StdEncoding.EncodeToString(testutil.PNG(t, testutil.KeyboardFrame()))
	cases := map[string]map[string]any{
		"not base64":         {"data": "!!!"},
		"not an image":       {"data": base64.StdEncoding.EncodeToString([]byte("hello"))},
		"extension mismatch": {"data": png, "name": "frame.gif"},
		"text data URI":      {"data": "data:image/png,abc"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if r := callTool(t, srv, "submit_frame", args); !r.IsError {
				t.Errorf("expected error, got %s", resultText(r))
			}
		})
	}
}

func TestProcessFrameAndEvents(t *testing.T) {
	srv, store := calibrated(t)
	_ = store.Write("a.png", testutil.PNG(t, testutil.KeyboardFrame(0)))
	_ = store.Write("b.png", testutil.PNG(t, testutil.KeyboardFrame()))

	for _, name := range []string{"a.png", "b.png"} {
		if r := callTool(t, srv, "process_frame", map[string]any{"name": name}); r.IsError {
			t.Fatalf("process_frame %s: %s", name, resultText(r))
		}
	}
	if r := callTool(t, srv, "process_frame", map[string]any{"name": "missing.png"}); !r.IsError {
		t.Error("expected error for missing frame")
	}

	r := callTool(t, srv, "list_key_events", map[string]any{"code": float64(60), "limit": float64(1)})
	var out struct {
		Events []struct {
			Name    string `json:"name"`
			Pressed bool   `json:"pressed"`
		} `json:"events"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || len(out.Events) != 1 {
		t.Fatalf("events = %+v", out)
	}
	if out.Events[0].Name != "C  4" || out.Events[0].Pressed {
		t.Errorf("newest event = %+v, want C4 release", out.Events[0])
	}
}

func TestListFrames(t *testing.T) {
	srv, store := testServer(t)
	if r := callTool(t, srv, "list_frames", map[string]any{}); resultText(r) != "no frames found" {
		t.Errorf("empty list = %q", resultText(r))
	}
	_ = store.Write("a.png", testutil.PNG(t, testutil.KeyboardFrame()))
	r := callTool(t, srv, "list_frames", map[string]any{})
	if !strings.Contains(resultText(r), `"a.png"`) {
		t.Errorf("list = %s", resultText(r))
	}
}

func TestTemplateFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_template_format", map[string]any{})
	if !strings.Contains(resultText(r), "Template Format") {
		t.Error("contract text missing")
	}
	contents, err := srv.readTemplateFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != templateFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
