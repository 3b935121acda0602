package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const defaultHistoryLimit = 20

// registerDisguiseTools registers the repackaging pipeline tools
func (s *MCPServer) registerDisguiseTools() {
	// apk_disguise - Repackage an APK under a new package name
	s.server.AddTool(
		mcp.NewTool("apk_disguise",
			mcp.WithDescription("Repackage an APK under a new package name: decompile, patch the manifest, rebuild, zipalign, sign and optionally install (installing requires confirmation)"),
			mcp.WithString("source_apk",
				mcp.Required(),
				mcp.Description("Path to the source APK"),
			),
			mcp.WithString("prefix",
				mcp.Required(),
				mcp.Description("New package prefix, e.g. cn.chinapost (see prefix_scan)"),
			),
			mcp.WithString("suffix",
				mcp.Description("Last package segment; derived from the file name when omitted"),
			),
			mcp.WithString("device_id",
				mcp.Description("Device to install on"),
			),
			mcp.WithBoolean("install",
				mcp.Description("Install the signed APK on device_id"),
			),
			mcp.WithString("java",
				mcp.Description("Override the java executable"),
			),
			mcp.WithString("apktool",
				mcp.Description("Override the apktool.jar path"),
			),
			mcp.WithString("zipalign",
				mcp.Description("Override the zipalign path"),
			),
			mcp.WithString("apksigner",
				mcp.Description("Override the apksigner.jar path"),
			),
			mcp.WithString("keystore",
				mcp.Description("Override the keystore path"),
			),
		),
		s.handleApkDisguise,
	)

	// run_history - Recent pipeline runs
	s.server.AddTool(
		mcp.NewTool("run_history",
			mcp.WithDescription("List recent repackaging runs"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum runs to return (default 20)"),
			),
		),
		s.handleRunHistory,
	)
}

func (s *MCPServer) handleApkDisguise(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := DisguiseRequest{
		SourceAPK: stringArg(args, "source_apk"),
		Prefix:    stringArg(args, "prefix"),
		Suffix:    stringArg(args, "suffix"),
		DeviceID:  stringArg(args, "device_id"),
		Tools: Tools{
			Java:      stringArg(args, "java"),
			Apktool:   stringArg(args, "apktool"),
			Zipalign:  stringArg(args, "zipalign"),
			Apksigner: stringArg(args, "apksigner"),
			Keystore:  stringArg(args, "keystore"),
		},
	}
	req.InstallAfter, _ = args["install"].(bool)

	if req.SourceAPK == "" {
		return nil, fmt.Errorf("source_apk is required")
	}
	if req.Prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}

	// Installing changes device state
	if req.InstallAfter && req.DeviceID != "" {
		confirmed, err := s.confirmFunc()(ctx, "Install repackaged APK",
			fmt.Sprintf("Device: %s\nAPK: %s\nPrefix: %s", req.DeviceID, req.SourceAPK, req.Prefix))
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return textResult("Repackaging cancelled by user"), nil
		}
	}

	res, err := s.app.ProcessApkFull(req)
	if err != nil {
		return nil, fmt.Errorf("failed to process APK: %w", err)
	}

	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	result := fmt.Sprintf("Repackaging %s at step %s\n\n%s\n", status, res.Step, res.Message)
	if res.NewPackage != "" {
		result += fmt.Sprintf("New package: %s\n", res.NewPackage)
	}
	if res.OutputPath != "" {
		result += fmt.Sprintf("Output: %s\n", res.OutputPath)
	}

	jsonData, _ := json.MarshalIndent(res, "", "  ")
	result += fmt.Sprintf("\nJSON:\n```json\n%s\n```", string(jsonData))

	r := textResult(result)
	r.IsError = !res.Success
	return r, nil
}

func (s *MCPServer) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := defaultHistoryLimit
	if v, ok := request.GetArguments()["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	runs, err := s.app.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return textResult("No runs recorded"), nil
	}

	result := fmt.Sprintf("Last %d run(s):\n\n", len(runs))
	for i, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		started := time.UnixMilli(r.StartTime).Format(time.RFC3339)
		result += fmt.Sprintf("%d. %s -> %s [%s at %s] %s\n", i+1, r.SourceAPK, r.NewPackage, status, r.Step, started)
		if r.Error != "" {
			result += fmt.Sprintf("   Error: %s\n", r.Error)
		}
	}
	return textResult(result), nil
}
