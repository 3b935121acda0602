package main

import (
	"ApkDisguise/mcp"
	"ApkDisguise/pkg/types"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.DisguiseApp interface

func (b *MCPBridge) CheckAdb() bool {
	return b.app.CheckAdb()
}

func (b *MCPBridge) GetDevices() ([]string, error) {
	return b.app.GetDevices()
}

func (b *MCPBridge) GetInstalledApps(deviceID string) ([]mcp.InstalledApplication, error) {
	return b.app.GetInstalledApps(deviceID)
}

func (b *MCPBridge) UninstallApp(deviceID, packageName string) (bool, error) {
	return b.app.UninstallApp(deviceID, packageName)
}

func (b *MCPBridge) ScanTrustedPrefixes(deviceID string) ([]mcp.TrustedPrefix, error) {
	return b.app.ScanTrustedPrefixes(deviceID)
}

// ProcessApkFull logs each stage so MCP clients can follow a run in the log
func (b *MCPBridge) ProcessApkFull(req mcp.DisguiseRequest) (mcp.PipelineResult, error) {
	LogInfo("mcp").Str("source", req.SourceAPK).Str("prefix", req.Prefix).Msg("apk_disguise requested")
	return b.app.ProcessApk(req, func(stage types.Stage) {
		LogDebug("mcp").Str("stage", string(stage)).Str("source", req.SourceAPK).Msg("Pipeline stage")
	})
}

func (b *MCPBridge) ResolveToolPaths() map[string]string {
	return b.app.ResolveToolPaths()
}

func (b *MCPBridge) ListRuns(limit int) ([]mcp.RunRecord, error) {
	return b.app.ListRuns(limit)
}

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}

// StartMCPServer serves app over stdio until the client disconnects or the
// app context is cancelled
func StartMCPServer(app *App) error {
	bridge := NewMCPBridge(app)
	mcpServer := mcp.NewMCPServer(bridge)
	LogInfo("mcp").Str("version", app.GetAppVersion()).Str("logFile", GetLogFilePath()).Msg("Starting MCP server on stdio")
	return mcpServer.Serve(app.ctx)
}
