package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxFrameSize = 10 << 20 // 10 MB

var (
	mimeToExt = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

func (s *Server) submitFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := req.GetString("name", "")

	data, err := decodeFrameData(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxFrameSize {
		return mcp.NewToolResultError(fmt.Sprintf("frame too large: %d bytes (max %d)", len(data), maxFrameSize)), nil
	}

	detected := mimeToExt[strings.Split(http.DetectContentType(data), ";")[0]]
	if detected == "" {
		return mcp.NewToolResultError("content is not a PNG, JPEG or GIF image"), nil
	}
	if name == "" {
		name = uuid.NewString() + detected
	}
	name = sanitizeFilename(name)
	if ext := strings.ToLower(filepath.Ext(name)); !sameImageType(ext, detected) {
		return mcp.NewToolResultError(fmt.Sprintf("content does not match extension %s (detected: %s)", ext, detected)), nil
	}

	res, err := s.svc.SubmitFrame(ctx, name, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// decodeFrameData accepts plain base64 or a data:<mime>;base64,<data> URI.
func decodeFrameData(raw string) ([]byte, error) {
	encoded := raw
	if strings.HasPrefix(raw, "data:") {
		rest := strings.TrimPrefix(raw, "data:")
		commaIdx := strings.Index(rest, ",")
		if commaIdx < 0 {
			return nil, fmt.Errorf("invalid data URI: missing comma separator")
		}
		if !strings.Contains(rest[:commaIdx], ";base64") {
			return nil, fmt.Errorf("only base64 data URIs are supported")
		}
		encoded = rest[commaIdx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || strings.HasPrefix(name, ".") {
		name = uuid.NewString() + name
	}
	return name
}

func sameImageType(ext, detected string) bool {
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return ext == detected
}
