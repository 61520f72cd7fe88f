// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Cueflow tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/library"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/showservice"
)

// Server wraps the MCP server with Cueflow tools.
type Server struct {
	mcp *server.MCPServer
	svc *showservice.Service
	db  *library.DB
	eng *engine.Engine
}

// New creates a new MCP server with all Cueflow tools registered.
func New(svc *showservice.Service, db *library.DB, eng *engine.Engine) *Server {
	s := &Server{svc: svc, db: db, eng: eng}

	s.mcp = server.NewMCPServer(
		"Cueflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_shows",
		mcp.WithDescription("Full-text search through show names and track names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchShows)

	s.mcp.AddTool(mcp.NewTool("read_show",
		mcp.WithDescription("Read the full timeline of a show as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the show (e.g. shows/opening.json)")),
	), s.readShow)

	s.mcp.AddTool(mcp.NewTool("create_show",
		mcp.WithDescription("Create a new show at the specified path. The timeline MUST "+
			"follow the canonical show format (named tracks with non-overlapping events). "+
			"Read the contract first via the get_show_contract tool or the "+
			"cueflow://show-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new show (must end with .json, .json.gz or .mpk)")),
		mcp.WithString("timeline", mcp.Required(), mcp.Description("Timeline JSON following the Cueflow show format contract")),
	), s.createShow)

	s.mcp.AddTool(mcp.NewTool("get_show_contract",
		mcp.WithDescription("Returns the canonical Cueflow show format contract. "+
			"Call this before creating or updating shows to ensure correct structure."),
	), s.getShowContract)

	s.mcp.AddTool(mcp.NewTool("list_shows",
		mcp.WithDescription("List all shows in the library."),
	), s.listShows)

	s.mcp.AddTool(mcp.NewTool("load_show",
		mcp.WithDescription("Load a show into the playback engine. Playback starts paused at zero."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the show to load")),
	), s.loadShow)

	s.mcp.AddTool(mcp.NewTool("transport_play",
		mcp.WithDescription("Start or resume playback of the loaded show."),
	), s.transportPlay)

	s.mcp.AddTool(mcp.NewTool("transport_pause",
		mcp.WithDescription("Pause playback in place."),
	), s.transportPause)

	s.mcp.AddTool(mcp.NewTool("transport_seek",
		mcp.WithDescription("Move the playhead to a position in seconds."),
		mcp.WithNumber("position", mcp.Required(), mcp.Description("Target position in seconds")),
	), s.transportSeek)

	s.mcp.AddTool(mcp.NewTool("transport_status",
		mcp.WithDescription("Return the current transport state (position, rate, playing, loop)."),
	), s.transportStatus)

	// Resource: show format contract.
	s.mcp.AddResource(
		mcp.NewResource("cueflow://show-format", "Show Format Contract",
			mcp.WithResourceDescription("Canonical timeline document format that all shows must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readShowFormatResource,
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

func (s *Server) searchShows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	show, err := s.svc.GetShow(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(show.Timeline, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("timeline")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var tl models.Timeline
	if err := json.Unmarshal([]byte(raw), &tl); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid timeline JSON: %v", err)), nil
	}
	if _, err := s.svc.CreateShow(ctx, path, &tl); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listShows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListShows(ctx, 0, 0, "", "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%.1fs", it.Path, it.Name, it.Duration))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no shows in library"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) loadShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	show, err := s.svc.LoadShow(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loaded: %s (%.1fs)", show.Path, show.Duration)), nil
}

func (s *Server) transportPlay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.eng.Play()
	return s.transportStatus(ctx, req)
}

func (s *Server) transportPause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.eng.Pause()
	return s.transportStatus(ctx, req)
}

func (s *Server) transportSeek(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pos, err := req.RequireFloat("position")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.eng.Seek(pos); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.transportStatus(ctx, req)
}

func (s *Server) transportStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.eng.Snapshot(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getShowContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ShowFormatContract), nil
}

func (s *Server) readShowFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "cueflow://show-format",
			MIMEType: "text/markdown",
			Text:     ShowFormatContract,
		},
	}, nil
}
