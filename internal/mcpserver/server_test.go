package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/showservice"
	"github.com/starford/cueflow/internal/testutil"
	"github.com/starford/cueflow/internal/transport"
)

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()

	_, store := testutil.TestLibrary(t)
	db := testutil.TestDB(t)

	eng := engine.New(nil, engine.Options{SeekMode: transport.SeekClamp})
	svc := showservice.NewService(store, db, eng)
	return New(svc, db, eng), eng
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call-tool test helper, so the handler
	// functions are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_shows":
		result, err = srv.searchShows(ctx, req)
	case "read_show":
		result, err = srv.readShow(ctx, req)
	case "create_show":
		result, err = srv.createShow(ctx, req)
	case "list_shows":
		result, err = srv.listShows(ctx, req)
	case "load_show":
		result, err = srv.loadShow(ctx, req)
	case "transport_play":
		result, err = srv.transportPlay(ctx, req)
	case "transport_pause":
		result, err = srv.transportPause(ctx, req)
	case "transport_seek":
		result, err = srv.transportSeek(ctx, req)
	case "transport_status":
		result, err = srv.transportStatus(ctx, req)
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

const testShowJSON = `{
  "name": "Test Show",
  "tracks": [
    {
      "id": "wash",
      "name": "front wash",
      "protocol": "dmx",
      "target": {"universe": 0, "channel": 1, "width": 1},
      "events": [
        {"id": "fade", "start": 0, "duration": 4, "mode": "linear", "from": [0], "to": [255]}
      ]
    }
  ]
}`

func TestCreateAndReadShow(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_show", map[string]interface{}{
		"path":     "test.json",
		"timeline": testShowJSON,
	})
	text := resultText(r)
	if text != "created: test.json" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_show", map[string]interface{}{
		"path": "test.json",
	})
	if r.IsError {
		t.Fatalf("read failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"Test Show"`) {
		t.Errorf("read result missing name: %q", resultText(r))
	}
}

func TestCreateShowRejectsInvalid(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_show", map[string]interface{}{
		"path":     "bad.json",
		"timeline": `{"name": "Bad", "tracks": [{"id": "t", "events": []}]}`,
	})
	if !r.IsError {
		t.Error("expected error for invalid timeline")
	}
}

func TestListShows(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_shows", map[string]interface{}{})
	if resultText(r) != "no shows in library" {
		t.Errorf("empty list = %q", resultText(r))
	}

	callTool(t, srv, "create_show", map[string]interface{}{
		"path": "a.json", "timeline": testShowJSON,
	})
	r = callTool(t, srv, "list_shows", map[string]interface{}{})
	if !strings.Contains(resultText(r), "a.json") {
		t.Errorf("list = %q", resultText(r))
	}
}

func TestReadShowMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_show", map[string]interface{}{"path": "nope.json"})
	if !r.IsError {
		t.Error("expected error for missing show")
	}
}

func TestSearchShows(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_show", map[string]interface{}{
		"path": "test.json", "timeline": testShowJSON,
	})

	r := callTool(t, srv, "search_shows", map[string]interface{}{"query": "front"})
	if !strings.Contains(resultText(r), "test.json") {
		t.Errorf("search result = %q", resultText(r))
	}
}

func TestTransportTools(t *testing.T) {
	srv, eng := testServer(t)
	callTool(t, srv, "create_show", map[string]interface{}{
		"path": "test.json", "timeline": testShowJSON,
	})

	r := callTool(t, srv, "load_show", map[string]interface{}{"path": "test.json"})
	if r.IsError {
		t.Fatalf("load failed: %s", resultText(r))
	}

	callTool(t, srv, "transport_play", map[string]interface{}{})
	if !eng.Snapshot().Playing {
		t.Error("engine not playing after transport_play")
	}

	callTool(t, srv, "transport_seek", map[string]interface{}{"position": 2.0})
	if got := eng.Snapshot().Now; got != 2.0 {
		t.Errorf("position after seek = %v, want 2", got)
	}

	callTool(t, srv, "transport_pause", map[string]interface{}{})
	if eng.Snapshot().Playing {
		t.Error("engine still playing after transport_pause")
	}

	r = callTool(t, srv, "transport_status", map[string]interface{}{})
	var snap transport.Snapshot
	if err := json.Unmarshal([]byte(resultText(r)), &snap); err != nil {
		t.Fatalf("status not JSON: %v", err)
	}
	if snap.Now != 2.0 {
		t.Errorf("status position = %v, want 2", snap.Now)
	}
}
