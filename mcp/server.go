// Package mcp exposes ApkDisguise over the Model Context Protocol so AI
// clients can inspect devices and repackage APKs.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"ApkDisguise/pkg/pipeline"
	"ApkDisguise/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared packages
type (
	InstalledApplication = types.InstalledApplication
	TrustedPrefix        = types.TrustedPrefix
	PipelineResult       = types.PipelineResult
	RunRecord            = types.RunRecord
	DisguiseRequest      = pipeline.Request
	Tools                = pipeline.Tools
)

// DisguiseApp is what the MCP server needs from the main App
type DisguiseApp interface {
	// Devices
	CheckAdb() bool
	GetDevices() ([]string, error)

	// Applications
	GetInstalledApps(deviceID string) ([]InstalledApplication, error)
	UninstallApp(deviceID, packageName string) (bool, error)
	ScanTrustedPrefixes(deviceID string) ([]TrustedPrefix, error)

	// Pipeline
	ProcessApkFull(req DisguiseRequest) (PipelineResult, error)
	ResolveToolPaths() map[string]string
	ListRuns(limit int) ([]RunRecord, error)

	// Utility
	GetAppVersion() string
}

// ConfirmFunc asks the client to approve a dangerous operation
type ConfirmFunc func(ctx context.Context, operation, details string) (bool, error)

// MCPServer wraps the MCP server and routes calls to the App
type MCPServer struct {
	app     DisguiseApp
	server  *server.MCPServer
	confirm ConfirmFunc

	mu     sync.Mutex
	stdio  *server.StdioServer
	cancel context.CancelFunc // set while a session is active
}

// NewMCPServer creates a new MCP server
func NewMCPServer(app DisguiseApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"apk-disguise",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithElicitation(), // dangerous operations ask first
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}
	s.confirm = s.requestConfirmation

	s.registerTools()
	s.registerResources()

	return s
}

// SetConfirmFunc replaces the elicitation round trip
func (s *MCPServer) SetConfirmFunc(fn ConfirmFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = s.requestConfirmation
	}
	s.confirm = fn
}

func (s *MCPServer) confirmFunc() ConfirmFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirm
}

func (s *MCPServer) registerTools() {
	s.registerDeviceTools()
	s.registerAppTools()
	s.registerDisguiseTools()
}

func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"disguise://devices",
			"Connected Android devices",
			mcp.WithMIMEType("application/json"),
		),
		s.handleDevicesResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"disguise://tools",
			"Resolved tool paths",
			mcp.WithMIMEType("application/json"),
		),
		s.handleToolsResource,
	)
}

// ErrAlreadyRunning is returned by Serve when a session is active
var ErrAlreadyRunning = errors.New("MCP server is already running")

// Serve speaks MCP over stdin/stdout until ctx ends, Stop is called or the
// client closes stdin
func (s *MCPServer) Serve(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *MCPServer) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.cancel = cancel
	s.stdio = server.NewStdioServer(s.server)
	stdio := s.stdio
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends the active session, if any
func (s *MCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// IsRunning reports whether a session is active
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// confirmSchema is the elicitation form: a single required checkbox
var confirmSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"confirm": map[string]any{
			"type":        "boolean",
			"description": "Tick to run the operation",
		},
	},
	"required": []string{"confirm"},
}

// requestConfirmation asks the client through elicitation. Declining or
// cancelling the form counts as "no".
func (s *MCPServer) requestConfirmation(ctx context.Context, operation, details string) (bool, error) {
	req := mcp.ElicitationRequest{}
	req.Params.Message = fmt.Sprintf("%s changes the device or your files.\n\n%s\n\nProceed?", operation, details)
	req.Params.RequestedSchema = confirmSchema

	res, err := s.server.RequestElicitation(ctx, req)
	if err != nil {
		return false, fmt.Errorf("confirmation for %s: %w", operation, err)
	}
	if res.Action != mcp.ElicitationResponseActionAccept {
		return false, nil
	}

	form, ok := res.Content.(map[string]any)
	if !ok {
		return false, fmt.Errorf("confirmation for %s: unexpected content %T", operation, res.Content)
	}
	confirmed, _ := form["confirm"].(bool)
	return confirmed, nil
}

// textResult wraps text in a tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// stringArg returns a string argument, or "" when absent or mistyped
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// requiredArgs returns the named string arguments in order and fails on the
// first one that is empty
func requiredArgs(request mcp.CallToolRequest, keys ...string) ([]string, error) {
	args := request.GetArguments()
	vals := make([]string, len(keys))
	for i, k := range keys {
		if vals[i] = stringArg(args, k); vals[i] == "" {
			return nil, fmt.Errorf("%s is required", k)
		}
	}
	return vals, nil
}
