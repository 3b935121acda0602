// Package pipeline repackages an APK under a new package identity:
// decompile, patch the manifest, rebuild, align, sign and optionally install.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ApkDisguise/pkg/runner"
	"ApkDisguise/pkg/types"
)

// Tools holds the paths of the external tools a run invokes
type Tools struct {
	Java      string `json:"java"`
	Apktool   string `json:"apktool"`
	Zipalign  string `json:"zipalign"`
	Apksigner string `json:"apksigner"`
	Keystore  string `json:"keystore"`
}

// Missing returns the names of unset tools
func (t Tools) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, path string }{
		{"java", t.Java},
		{"apktool", t.Apktool},
		{"zipalign", t.Zipalign},
		{"apksigner", t.Apksigner},
		{"keystore", t.Keystore},
	} {
		if strings.TrimSpace(f.path) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Signing holds the keystore credentials passed to apksigner
type Signing struct {
	KeystorePass string
	KeyAlias     string
	KeyPass      string
}

// DefaultSigning matches the bundled release keystore
func DefaultSigning() Signing {
	return Signing{KeystorePass: "123456", KeyAlias: "my-alias", KeyPass: "123456"}
}

// Request describes one run
type Request struct {
	SourceAPK    string `json:"sourceApk"`
	Prefix       string `json:"prefix"`
	Suffix       string `json:"suffix,omitempty"`
	DeviceID     string `json:"deviceId,omitempty"`
	InstallAfter bool   `json:"installAfter"`
	Tools        Tools  `json:"tools"`
}

// Installer pushes the final APK to a device
type Installer interface {
	Install(ctx context.Context, deviceID, apkPath string) (runner.Result, bool, error)
}

// Observer is told when each stage starts
type Observer func(stage types.Stage)

// Pipeline runs the stages in order; any stage failure ends the run
type Pipeline struct {
	Runner    runner.Runner
	Installer Installer
	Signing   Signing
	Manifest  ManifestDefaults
	WorkRoot  string // parent of the work directory, os.TempDir() when empty
	Logger    *zerolog.Logger
	Observer  Observer
}

// New creates a Pipeline with default signing and manifest settings
func New(r runner.Runner, installer Installer, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		Runner:    r,
		Installer: installer,
		Signing:   DefaultSigning(),
		Manifest:  DefaultManifest(),
		Logger:    logger,
	}
}

func (p *Pipeline) log() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (p *Pipeline) enter(stage types.Stage) {
	p.log().Debug().Str("stage", string(stage)).Msg("stage started")
	if p.Observer != nil {
		p.Observer(stage)
	}
}

// Workspace returns the paths a run for sourceAPK would use
func (p *Pipeline) Workspace(sourceAPK string) Workspace {
	root := p.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	return NewWorkspace(sourceAPK, root)
}

// Run executes the pipeline. Tool-reported failures come back as a result
// with Success=false; launch and I/O failures come back as errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (types.PipelineResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(req.SourceAPK) == "" {
		return types.PipelineResult{}, fmt.Errorf("source APK path is required")
	}
	if strings.TrimSpace(req.Prefix) == "" {
		return types.PipelineResult{}, fmt.Errorf("package prefix is required")
	}
	if missing := req.Tools.Missing(); len(missing) > 0 {
		return types.PipelineResult{}, fmt.Errorf("missing tool paths: %s", strings.Join(missing, ", "))
	}

	ws := p.Workspace(req.SourceAPK)
	newPackage := NewPackageName(req.Prefix, req.Suffix, ws.Stem)

	unlock := workLocks.Lock(ws.WorkDir)
	defer unlock()

	logger := p.log().With().Str("source", req.SourceAPK).Str("package", newPackage).Logger()
	start := time.Now()
	logger.Info().Msg("pipeline started")

	res, err := p.run(ctx, req, ws, newPackage, &logger)
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("pipeline aborted")
		return types.PipelineResult{}, err
	}
	res.NewPackage = newPackage

	logger.Info().
		Bool("success", res.Success).
		Str("step", string(res.Step)).
		Str("output", res.OutputPath).
		Dur("duration", time.Since(start)).
		Msg("pipeline finished")
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, ws Workspace, newPackage string, logger *zerolog.Logger) (types.PipelineResult, error) {
	t := req.Tools

	// decompile
	p.enter(types.StageDecompile)
	_ = os.RemoveAll(ws.WorkDir)
	out, err := p.Runner.Run(ctx, t.Java, "-jar", t.Apktool, "d", req.SourceAPK, "-o", ws.WorkDir, "-f", "-s")
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("decompile command failed: %w", err)
	}
	if !out.ExitSuccess {
		return failure(types.StageDecompile, "decompile failed: "+out.CombinedText(), ""), nil
	}

	// patch manifest
	p.enter(types.StagePatch)
	if err := p.patch(ws.Manifest, newPackage); err != nil {
		return types.PipelineResult{}, err
	}

	// rebuild
	p.enter(types.StageRebuild)
	out, err = p.Runner.Run(ctx, t.Java, "-jar", t.Apktool, "b", ws.WorkDir, "-o", ws.Rebuilt)
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("rebuild command failed: %w", err)
	}
	if !out.ExitSuccess {
		return failure(types.StageRebuild, "rebuild failed: "+out.CombinedText(), ""), nil
	}

	// align
	p.enter(types.StageZipalign)
	out, err = p.Runner.Run(ctx, t.Zipalign, "-f", "-v", "4", ws.Rebuilt, ws.Aligned)
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("zipalign command failed: %w", err)
	}
	if !out.ExitSuccess {
		return failure(types.StageZipalign, "zipalign failed: "+out.StderrText(), ws.Rebuilt), nil
	}

	// sign
	p.enter(types.StageSign)
	s := p.Signing
	out, err = p.Runner.Run(ctx, t.Java,
		"-jar", t.Apksigner, "sign",
		"--ks", t.Keystore,
		"--ks-pass", "pass:"+s.KeystorePass,
		"--ks-key-alias", s.KeyAlias,
		"--key-pass", "pass:"+s.KeyPass,
		"--v1-signing-enabled", "true",
		"--v2-signing-enabled", "false",
		"--out", ws.Final,
		ws.Aligned,
	)
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("sign command failed: %w", err)
	}
	if !out.ExitSuccess {
		return failure(types.StageSign, "sign failed: "+out.StderrText(), ws.Aligned), nil
	}

	p.enter(types.StageCleanup)
	p.cleanup(ws, logger)

	if req.InstallAfter {
		if req.DeviceID == "" {
			logger.Warn().Msg("install requested without a device, skipping")
		} else {
			p.enter(types.StageInstall)
			return p.install(ctx, req.DeviceID, ws.Final, newPackage), nil
		}
	}

	return types.PipelineResult{
		Success:    true,
		Message:    "processing complete, new package: " + newPackage,
		OutputPath: ws.Final,
		Step:       types.StageComplete,
	}, nil
}

func (p *Pipeline) patch(manifestPath, newPackage string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	patched, err := PatchManifest(string(data), newPackage, p.Manifest)
	if err != nil {
		return fmt.Errorf("failed to patch %s: %w", manifestPath, err)
	}
	if err := os.WriteFile(manifestPath, []byte(patched), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// cleanup removes intermediates; failures are logged and never fail the run
func (p *Pipeline) cleanup(ws Workspace, logger *zerolog.Logger) {
	for _, path := range []string{ws.Rebuilt, ws.Aligned} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("failed to remove intermediate")
		}
	}
	if err := os.RemoveAll(ws.WorkDir); err != nil {
		logger.Warn().Err(err).Str("path", ws.WorkDir).Msg("failed to remove work directory")
	}
}

func (p *Pipeline) install(ctx context.Context, deviceID, apk, newPackage string) types.PipelineResult {
	if p.Installer == nil {
		return failure(types.StageInstall, "install failed: no installer configured", apk)
	}
	out, ok, err := p.Installer.Install(ctx, deviceID, apk)
	if err != nil {
		return failure(types.StageInstall, "install command failed: "+err.Error(), apk)
	}
	if !ok {
		return failure(types.StageInstall, "install failed: "+out.StdoutText(), apk)
	}
	return types.PipelineResult{
		Success:    true,
		Message:    "installed, new package: " + newPackage,
		OutputPath: apk,
		Step:       types.StageInstall,
	}
}

func failure(stage types.Stage, msg, output string) types.PipelineResult {
	return types.PipelineResult{
		Success:    false,
		Message:    msg,
		OutputPath: output,
		Step:       stage,
	}
}
