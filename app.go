package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ApkDisguise/pkg/adb"
	"ApkDisguise/pkg/config"
	"ApkDisguise/pkg/history"
	"ApkDisguise/pkg/pipeline"
	"ApkDisguise/pkg/prefix"
	"ApkDisguise/pkg/runner"
	"ApkDisguise/pkg/toolpaths"
	"ApkDisguise/pkg/types"
)

// App is the operation surface shared by the CLI and the MCP server
type App struct {
	ctx     context.Context
	cfg     config.Config
	version string

	runner    runner.Runner
	inventory *adb.Inventory
	scanner   prefix.Scanner
	pipeline  *pipeline.Pipeline
	history   *history.Store

	toolsDir string
	tools    map[string]string
	toolsMu  sync.RWMutex
	watcher  *ToolWatcher
}

// NewApp creates an App that launches real processes
func NewApp(version string, cfg config.Config) *App {
	return newApp(version, cfg, runner.ExecRunner{})
}

func newApp(version string, cfg config.Config, r runner.Runner) *App {
	toolsDir := cfg.Tools.Dir
	if toolsDir == "" {
		toolsDir = toolpaths.DefaultDir()
	}

	a := &App{
		ctx:      context.Background(),
		cfg:      cfg,
		version:  version,
		runner:   r,
		toolsDir: toolsDir,
		tools:    make(map[string]string),
	}
	a.refreshTools()

	// adb calls go through the limiter, build tools do not
	adbRunner := runner.NewThrottled(r, cfg.Adb.CallsPerSecond, cfg.Adb.Burst)
	a.inventory = adb.NewInventory(adbRunner, a.adbPath(), ModuleLogger("adb"))
	a.scanner = prefix.Scanner{Lister: a.inventory, Heuristic: cfg.Heuristic()}

	a.pipeline = pipeline.New(r, a.inventory, ModuleLogger("pipeline"))
	a.pipeline.Signing = cfg.PipelineSigning()
	a.pipeline.Manifest = cfg.ManifestDefaults()
	a.pipeline.WorkRoot = cfg.Workspace.WorkRoot

	return a
}

// startup opens the run journal. A journal failure only disables history.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	LogAppState(StateStarting, map[string]interface{}{"version": a.version})

	store, err := history.Open(a.cfg.DataDir)
	if err != nil {
		LogWarn("app").Err(err).Str("dataDir", a.cfg.DataDir).Msg("Run journal unavailable")
	} else {
		a.history = store
	}

	LogAppState(StateReady, map[string]interface{}{
		"toolsDir": a.toolsDir,
		"adb":      a.inventory.AdbPath(),
	})
}

// StartToolWatcher keeps tool paths current while a long-lived server runs
func (a *App) StartToolWatcher() {
	if a.watcher != nil {
		return
	}
	a.watcher = NewToolWatcher(a.toolsDir, func() {
		paths := a.refreshTools()
		LogInfo("tool_watcher").Int("found", len(paths)).Msg("Tool paths refreshed")
	})
	if err := a.watcher.Start(); err != nil {
		LogWarn("app").Err(err).Msg("Failed to watch tools directory")
	}
}

// Shutdown releases the journal and the watcher
func (a *App) Shutdown() {
	LogAppState(StateShuttingDown, nil)
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			LogWarn("app").Err(err).Msg("Failed to close run journal")
		}
		a.history = nil
	}
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// ========================================
// Tools
// ========================================

func (a *App) refreshTools() map[string]string {
	paths := toolpaths.Resolve(a.toolsDir)

	a.toolsMu.Lock()
	a.tools = paths
	a.toolsMu.Unlock()

	// nil while newApp is still wiring
	if a.inventory != nil {
		a.inventory.SetAdbPath(a.adbPath())
	}
	return paths
}

func (a *App) toolPaths() map[string]string {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	out := make(map[string]string, len(a.tools))
	for k, v := range a.tools {
		out[k] = v
	}
	return out
}

// adbPath prefers the configured adb, then PATH
func (a *App) adbPath() string {
	if a.cfg.Tools.Adb != "" {
		return a.cfg.Tools.Adb
	}
	if p := a.toolPaths()[toolpaths.Adb]; p != "" {
		return p
	}
	return "adb"
}

// ResolveToolPaths re-scans the tools directory and PATH
func (a *App) ResolveToolPaths() map[string]string {
	timer := StartOperation("tools", "resolve")
	paths := a.refreshTools()
	timer.AddDetail("dir", a.toolsDir).AddDetail("found", len(paths)).End()

	out := make(map[string]string, len(paths))
	for k, v := range paths {
		out[k] = v
	}
	return out
}

// ToolsDir returns the directory searched for bundled tools
func (a *App) ToolsDir() string {
	return a.toolsDir
}

// pipelineTools fills empty request paths from config, then from the resolved tools
func (a *App) pipelineTools(req pipeline.Tools) pipeline.Tools {
	fill := func(cur *string, v string) {
		if strings.TrimSpace(*cur) == "" {
			*cur = v
		}
	}
	fill(&req.Java, a.cfg.Tools.Java)
	fill(&req.Apktool, a.cfg.Tools.Apktool)
	fill(&req.Zipalign, a.cfg.Tools.Zipalign)
	fill(&req.Apksigner, a.cfg.Tools.Apksigner)
	fill(&req.Keystore, a.cfg.Tools.Keystore)

	req = toolpaths.PipelineTools(req, a.toolPaths())
	fill(&req.Java, "java")
	return req
}

// ========================================
// Devices and applications
// ========================================

// CheckAdb reports whether the device bridge can be launched
func (a *App) CheckAdb() bool {
	timer := StartOperation("adb", "check")
	ok := a.inventory.Available(a.ctx)
	timer.AddDetail("available", ok).End()
	return ok
}

// GetDevices lists online device identifiers
func (a *App) GetDevices() ([]string, error) {
	timer := StartOperation("device", "list")
	devices, err := a.inventory.ListDevices(a.ctx)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}
	timer.AddDetail("count", len(devices)).End()
	return devices, nil
}

// ScanTrustedPrefixes suggests package prefixes for deviceID
func (a *App) ScanTrustedPrefixes(deviceID string) ([]types.TrustedPrefix, error) {
	timer := StartOperation("prefix", "scan").AddDetail("deviceId", deviceID)
	prefixes, err := a.scanner.Scan(a.ctx, deviceID)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}
	timer.AddDetail("count", len(prefixes)).End()
	return prefixes, nil
}

// GetInstalledApps lists the applications on deviceID
func (a *App) GetInstalledApps(deviceID string) ([]types.InstalledApplication, error) {
	timer := StartOperation("apps", "list").AddDetail("deviceId", deviceID)
	apps, err := a.inventory.ListInstalledApplications(a.ctx, deviceID)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}
	timer.AddDetail("count", len(apps)).End()
	return apps, nil
}

// UninstallApp removes packageName from deviceID
func (a *App) UninstallApp(deviceID, packageName string) (bool, error) {
	timer := StartOperation("apps", "uninstall").
		AddDetail("deviceId", deviceID).
		AddDetail("package", packageName)
	ok, err := a.inventory.Uninstall(a.ctx, deviceID, packageName)
	if err != nil {
		timer.EndWithError(err)
		return false, err
	}
	timer.AddDetail("success", ok).End()
	return ok, nil
}

// ========================================
// Pipeline
// ========================================

// ProcessApkFull repackages an APK and optionally installs it
func (a *App) ProcessApkFull(req pipeline.Request) (types.PipelineResult, error) {
	return a.ProcessApk(req, nil)
}

// ProcessApk is ProcessApkFull with a stage observer
func (a *App) ProcessApk(req pipeline.Request, observer pipeline.Observer) (types.PipelineResult, error) {
	req.SourceAPK = strings.TrimSpace(req.SourceAPK)
	req.Prefix = strings.TrimSpace(req.Prefix)
	req.DeviceID = strings.TrimSpace(req.DeviceID)

	if req.DeviceID != "" {
		if err := adb.ValidateDeviceID(req.DeviceID); err != nil {
			return types.PipelineResult{}, err
		}
	}
	req.Tools = a.pipelineTools(req.Tools)

	timer := StartOperation("pipeline", "process").
		AddDetail("source", req.SourceAPK).
		AddDetail("prefix", req.Prefix).
		AddDetail("install", req.InstallAfter)

	p := *a.pipeline
	p.Observer = observer

	start := time.Now()
	res, err := p.Run(a.ctx, req)
	a.record(req, res, err, start)

	if err != nil {
		timer.EndWithError(err)
		return types.PipelineResult{}, err
	}
	timer.AddDetail("success", res.Success).AddDetail("step", string(res.Step)).End()
	return res, nil
}

func (a *App) record(req pipeline.Request, res types.PipelineResult, runErr error, start time.Time) {
	if a.history == nil {
		return
	}

	rec := &types.RunRecord{
		SourceAPK:  req.SourceAPK,
		Prefix:     req.Prefix,
		NewPackage: res.NewPackage,
		DeviceID:   req.DeviceID,
		Install:    req.InstallAfter,
		Success:    res.Success,
		Step:       res.Step,
		Message:    res.Message,
		OutputPath: res.OutputPath,
		StartTime:  start.UnixMilli(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		if rec.NewPackage == "" && req.Prefix != "" {
			ws := a.pipeline.Workspace(req.SourceAPK)
			rec.NewPackage = pipeline.NewPackageName(req.Prefix, req.Suffix, ws.Stem)
		}
	}

	if err := a.history.Record(rec); err != nil {
		LogWarn("history").Err(err).Msg("Failed to record run")
	}
}

// ListRuns returns the newest journaled runs
func (a *App) ListRuns(limit int) ([]types.RunRecord, error) {
	if a.history == nil {
		return nil, fmt.Errorf("run journal is not available")
	}
	return a.history.List(limit)
}
