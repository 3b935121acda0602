// Package adb talks to the Android device bridge: device discovery,
// installed-application inventory, install and uninstall.
package adb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ApkDisguise/pkg/runner"
	"ApkDisguise/pkg/types"
)

// Inventory composes the process runner and the output parsers
type Inventory struct {
	Runner runner.Runner
	Logger *zerolog.Logger

	mu      sync.RWMutex
	adbPath string

	// Optional overrides for success determination
	Uninstalled Classifier
	Installed   Classifier
}

// NewInventory creates an Inventory for the adb binary at adbPath
func NewInventory(r runner.Runner, adbPath string, logger *zerolog.Logger) *Inventory {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &Inventory{Runner: r, adbPath: adbPath, Logger: logger}
}

// AdbPath returns the adb binary calls currently go to
func (inv *Inventory) AdbPath() string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.adbPath
}

// SetAdbPath points later calls at another adb binary; "" means adb on PATH
func (inv *Inventory) SetAdbPath(path string) {
	if path == "" {
		path = "adb"
	}
	inv.mu.Lock()
	inv.adbPath = path
	inv.mu.Unlock()
}

func (inv *Inventory) log() *zerolog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (inv *Inventory) run(ctx context.Context, args ...string) (runner.Result, error) {
	inv.log().Debug().Strs("args", args).Msg("adb")
	return inv.Runner.Run(ctx, inv.AdbPath(), args...)
}

// Available probes the bridge with `adb version`. Launch failures report false.
func (inv *Inventory) Available(ctx context.Context) bool {
	res, err := inv.run(ctx, "version")
	if err != nil {
		inv.log().Debug().Err(err).Msg("adb not available")
		return false
	}
	return res.ExitSuccess
}

// ListDevices returns identifiers of devices in the "device" state
func (inv *Inventory) ListDevices(ctx context.Context) ([]string, error) {
	res, err := inv.run(ctx, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices: %w", err)
	}
	return ParseDevices(res.StdoutText()), nil
}

// ListPackages returns the raw `pm list packages` names for a device
func (inv *Inventory) ListPackages(ctx context.Context, deviceID string) ([]string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	res, err := inv.run(ctx, "-s", deviceID, "shell", "pm", "list", "packages")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return ParsePackageNames(res.StdoutText()), nil
}

// ListInstalledApplications returns every package with its system flag,
// ordered case-insensitively by display name
func (inv *Inventory) ListInstalledApplications(ctx context.Context, deviceID string) ([]types.InstalledApplication, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	all, err := inv.run(ctx, "-s", deviceID, "shell", "pm", "list", "packages", "-f")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	system, err := inv.run(ctx, "-s", deviceID, "shell", "pm", "list", "packages", "-s")
	if err != nil {
		return nil, fmt.Errorf("failed to list system packages: %w", err)
	}

	systemSet := ParsePackageSet(system.StdoutText())
	entries := ParsePackagePaths(all.StdoutText())

	apps := make([]types.InstalledApplication, 0, len(entries))
	for _, e := range entries {
		apps = append(apps, types.InstalledApplication{
			PackageName: e.Name,
			DisplayName: DisplayName(e.Name),
			IsSystem:    systemSet[e.Name],
		})
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].DisplayName) < strings.ToLower(apps[j].DisplayName)
	})

	inv.log().Debug().Str("device", deviceID).Int("count", len(apps)).Msg("listed installed applications")
	return apps, nil
}

// Uninstall removes a package; success is read from the tool's stdout
func (inv *Inventory) Uninstall(ctx context.Context, deviceID, packageName string) (bool, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return false, err
	}
	if err := ValidatePackageName(packageName); err != nil {
		return false, err
	}

	res, err := inv.run(ctx, "-s", deviceID, "shell", "pm", "uninstall", packageName)
	if err != nil {
		return false, fmt.Errorf("failed to uninstall: %w", err)
	}

	ok := inv.uninstallClassifier().Succeeded(res)
	if !ok {
		inv.log().Warn().Str("package", packageName).Str("output", strings.TrimSpace(res.StdoutText())).Msg("uninstall not confirmed")
	}
	return ok, nil
}

// Install pushes an APK with `install -r -t -g`.
// The raw result is returned so callers can report the tool's output.
func (inv *Inventory) Install(ctx context.Context, deviceID, apkPath string) (runner.Result, bool, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return runner.Result{}, false, err
	}
	res, err := inv.run(ctx, "-s", deviceID, "install", "-r", "-t", "-g", apkPath)
	if err != nil {
		return res, false, err
	}
	return res, inv.installClassifier().Succeeded(res), nil
}

func (inv *Inventory) uninstallClassifier() Classifier {
	if inv.Uninstalled != nil {
		return inv.Uninstalled
	}
	return UninstallClassifier
}

func (inv *Inventory) installClassifier() Classifier {
	if inv.Installed != nil {
		return inv.Installed
	}
	return InstallClassifier
}
