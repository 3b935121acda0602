package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

var packageTypes = []string{"all", "user", "system"}

func deviceParam(desc string) mcp.ToolOption {
	return mcp.WithString("device_id", mcp.Required(), mcp.Description(desc))
}

// registerAppTools registers inventory and prefix tools
func (s *MCPServer) registerAppTools() {
	s.server.AddTool(mcp.NewTool("app_list",
		mcp.WithDescription("Show the packages installed on a connected device"),
		deviceParam("Serial of the device to inspect"),
		mcp.WithString("type",
			mcp.Enum(packageTypes...),
			mcp.Description("Which packages to show: all (default), user or system"),
		),
	), s.handleAppList)

	// removes a package from the device, so the client is asked first
	s.server.AddTool(mcp.NewTool("app_uninstall",
		mcp.WithDescription("Remove a package from a connected device after the user confirms"),
		deviceParam("Serial of the target device"),
		mcp.WithString("package_name", mcp.Required(), mcp.Description("Package id, e.g. com.example.app")),
		mcp.WithDestructiveHintAnnotation(true),
	), s.handleAppUninstall)

	s.server.AddTool(mcp.NewTool("prefix_scan",
		mcp.WithDescription("Suggest package name prefixes that blend in with the apps already on a device"),
		deviceParam("Serial of the device to sample"),
	), s.handlePrefixScan)
}

func (s *MCPServer) handleAppList(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vals, err := requiredArgs(request, "device_id")
	if err != nil {
		return nil, err
	}

	kind := stringArg(request.GetArguments(), "type")
	switch kind {
	case "":
		kind = "all"
	case "all", "user", "system":
	default:
		return nil, fmt.Errorf("invalid type %q: use %s", kind, strings.Join(packageTypes, ", "))
	}

	apps, err := s.app.GetInstalledApps(vals[0])
	if err != nil {
		return nil, fmt.Errorf("list packages on %s: %w", vals[0], err)
	}

	var b strings.Builder
	n := 0
	for _, a := range apps {
		if kind != "all" && (kind == "system") != a.IsSystem {
			continue
		}
		n++
		origin := "user"
		if a.IsSystem {
			origin = "system"
		}
		fmt.Fprintf(&b, "%d. %s\n   Package: %s (%s)\n", n, a.DisplayName, a.PackageName, origin)
	}
	if n == 0 {
		return textResult("No packages found"), nil
	}
	return textResult(fmt.Sprintf("Found %d %s package(s):\n\n%s", n, kind, b.String())), nil
}

func (s *MCPServer) handleAppUninstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vals, err := requiredArgs(request, "device_id", "package_name")
	if err != nil {
		return nil, err
	}
	device, pkg := vals[0], vals[1]

	ok, err := s.confirmFunc()(ctx, "Uninstall App", fmt.Sprintf("Device: %s\nPackage: %s", device, pkg))
	switch {
	case err != nil:
		return nil, err
	case !ok:
		return textResult("Uninstall cancelled by user"), nil
	}

	removed, err := s.app.UninstallApp(device, pkg)
	if err != nil {
		return nil, fmt.Errorf("uninstall %s: %w", pkg, err)
	}
	if !removed {
		return textResult(fmt.Sprintf("Uninstall of %s failed", pkg)), nil
	}
	return textResult(fmt.Sprintf("Uninstalled %s", pkg)), nil
}

func (s *MCPServer) handlePrefixScan(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vals, err := requiredArgs(request, "device_id")
	if err != nil {
		return nil, err
	}

	prefixes, err := s.app.ScanTrustedPrefixes(vals[0])
	if err != nil {
		return nil, fmt.Errorf("scan prefixes on %s: %w", vals[0], err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggested prefixes for %s:\n\n", vals[0])
	for i, p := range prefixes {
		fmt.Fprintf(&b, "%d. %s (count %d, %s)\n", i+1, p.Prefix, p.Count, p.Source)
	}
	return textResult(b.String()), nil
}
