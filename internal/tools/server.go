// Package tools serves DarkDrop file operations to an agent as named tools
// over line-delimited JSON-RPC 2.0 on stdio.
package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

// APIKeyEnv names the agent API key the server authenticates with.
const APIKeyEnv = "DARKDROP_API_KEY"

// AccountEnv names the account used when a tool call omits accountId.
const AccountEnv = "DARKDROP_ACCOUNT_ID"

// maxLineSize bounds a single request line.
const maxLineSize = 4 << 20

// Options configures a Server.
type Options struct {
	// DefaultAccount is used when a call omits accountId.
	DefaultAccount string
	// WorkDir is where download_file writes when no destination is given.
	// Empty means the process working directory.
	WorkDir string
	Version string
}

// Server dispatches JSON-RPC requests to DropService on behalf of one
// authenticated agent.
type Server struct {
	service *drop.DropService
	actor   drop.Actor
	opts    Options
	logger  drop.Logger
	tools   []toolDef
	mu      sync.Mutex // serialises writes to the output
}

// NewServer authenticates apiKey once and returns a server acting as that agent.
func NewServer(ctx context.Context, service *drop.DropService, apiKey string, opts Options, logger drop.Logger) (*Server, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set: %w", APIKeyEnv, drop.ErrUnauthenticated)
	}
	identity, err := service.Authenticate(ctx, drop.Credentials{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("authenticating agent: %w", err)
	}
	if identity.Kind != model.IdentityAgent {
		return nil, fmt.Errorf("tool server requires an agent identity, got %s: %w", identity.Kind, drop.ErrUnauthenticated)
	}
	if logger == nil {
		logger = drop.NewNopLogger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		service: service,
		actor:   drop.Actor{Identity: identity, UserAgent: "darkdrop-tools/" + opts.Version},
		opts:    opts,
		logger:  logger,
	}
	s.tools = s.toolDefs()
	return s, nil
}

// Serve reads one request per line from r and writes one response per line
// to w until r is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	s.logger.Info("tool server ready", "agent", s.actor.Identity.ID)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := s.write(w, resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

func (s *Server) write(w io.Writer, resp *response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = w.Write(append(data, '\n'))
	return err
}

// handleLine decodes and dispatches one request. It returns nil for
// notifications.
func (s *Server) handleLine(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, codeInvalidRequest, "invalid request")
	}

	result, rerr := s.dispatch(ctx, &req)
	if req.isNotification() {
		return nil
	}
	if rerr != nil {
		return &response{JSONRPC: "2.0", ID: req.ID, Error: rerr}
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *request) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: "darkdrop", Version: s.opts.Version},
		}, nil
	case "notifications/initialized", "ping":
		return map[string]any{}, nil
	case "tools/list":
		return listToolsResult{Tools: s.Tools()}, nil
	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		def, ok := s.lookup(params.Name)
		if !ok {
			return nil, &rpcError{Code: codeInvalidParams, Message: "unknown tool: " + params.Name}
		}
		return s.call(ctx, def, params.Arguments), nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) call(ctx context.Context, def toolDef, args json.RawMessage) *CallResult {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	out, err := def.run(ctx, args)
	if err != nil {
		if drop.Category(err) == nil || drop.Category(err) == drop.ErrDependency {
			s.logger.Error("tool call failed", "tool", def.Name, "error", err)
		}
		return &CallResult{Content: []content{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true}
	}
	text, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &CallResult{Content: []content{{Type: "text", Text: "Error: encoding result: " + err.Error()}}, IsError: true}
	}
	return &CallResult{Content: []content{{Type: "text", Text: string(text)}}}
}

func (s *Server) lookup(name string) (toolDef, bool) {
	for _, t := range s.tools {
		if t.Name == name {
			return t, true
		}
	}
	return toolDef{}, false
}

// Tools returns the tool descriptions in listing order.
func (s *Server) Tools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Tool)
	}
	return out
}

func errorResponse(id json.RawMessage, code int, message string) *response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) workDir() (string, error) {
	if s.opts.WorkDir != "" {
		return s.opts.WorkDir, nil
	}
	return os.Getwd()
}
