package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers bridge and tool discovery tools
func (s *MCPServer) registerDeviceTools() {
	// adb_check - Probe the device bridge
	s.server.AddTool(
		mcp.NewTool("adb_check",
			mcp.WithDescription("Check whether adb can be launched"),
		),
		s.handleAdbCheck,
	)

	// device_list - List connected devices
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List connected Android devices that are online"),
		),
		s.handleDeviceList,
	)

	// tool_paths - Show resolved tools
	s.server.AddTool(
		mcp.NewTool("tool_paths",
			mcp.WithDescription("Show the resolved paths of java, adb, apktool, zipalign, apksigner and the keystore"),
		),
		s.handleToolPaths,
	)
}

func (s *MCPServer) handleAdbCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.app.CheckAdb() {
		return textResult("adb is available"), nil
	}
	return textResult("adb is not available: install platform-tools or set tools.adb in the config"), nil
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	if len(devices) == 0 {
		return textResult("No devices connected"), nil
	}

	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		result += fmt.Sprintf("%d. %s\n", i+1, d)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleToolPaths(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := s.app.ResolveToolPaths()

	keys := []string{"java", "adb", "apktool", "zipalign", "apksigner", "keystore"}
	var b strings.Builder
	var missing []string
	for _, k := range keys {
		if p, ok := paths[k]; ok {
			fmt.Fprintf(&b, "%-10s %s\n", k, p)
		} else {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		fmt.Fprintf(&b, "\nNot installed: %s\n", strings.Join(missing, ", "))
	}
	return textResult(b.String()), nil
}
