package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ApkDisguise/pkg/config"
	"ApkDisguise/pkg/pipeline"
	"ApkDisguise/pkg/toolpaths"
	"ApkDisguise/pkg/types"
)

var (
	configPath string
	outputJSON bool
)

// Execute runs the root command and exits non-zero on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "apkdisguise",
		Short:         "Repackage Android APKs under a new package name",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newDevicesCmd())
	cmd.AddCommand(newAppsCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newPrefixesCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

func resolvedConfigPath() string {
	if strings.TrimSpace(configPath) != "" {
		return configPath
	}
	return config.DefaultPath()
}

// withApp loads the config, sets up logging and runs fn against a started App
func withApp(cmd *cobra.Command, fn func(*App) error) error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return err
	}
	if err := InitLogger(logConfigFor(cmd, cfg)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer CloseLogger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app := NewApp(version, cfg)
	app.startup(ctx)
	defer app.Shutdown()

	return fn(app)
}

// logConfigFor keeps a log file for the long-lived MCP server even when none is configured
func logConfigFor(cmd *cobra.Command, cfg config.Config) LogConfig {
	lc := LogConfigFrom(cfg.Logging)
	if cmd.Name() == "mcp" && !lc.File {
		lc.File = true
		lc.FilePath = PersistentLogConfig(cfg.DataDir).FilePath
	}
	return lc
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// ========================================
// Device bridge
// ========================================

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that adb can be launched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *App) error {
				ok := app.CheckAdb()
				if outputJSON {
					if err := writeJSON(cmd, map[string]bool{"available": ok}); err != nil {
						return err
					}
				} else if ok {
					fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("adb is available"))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("adb is not available"))
				}
				if !ok {
					return errors.New("adb check failed")
				}
				return nil
			})
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show resolved tool paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *App) error {
				paths := app.ResolveToolPaths()
				if outputJSON {
					return writeJSON(cmd, paths)
				}
				printToolsTable(cmd, app.ToolsDir(), paths)
				return nil
			})
		},
	}
}

func printToolsTable(cmd *cobra.Command, dir string, paths map[string]string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n\n", headerStyle.Render("Tools directory:"), dir)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("TOOL")+"\t"+headerStyle.Render("PATH"))
	for _, k := range toolpaths.Keys {
		p, ok := paths[k]
		if !ok {
			p = warnStyle.Render("not found")
		}
		fmt.Fprintf(tw, "%s\t%s\n", k, p)
	}
	tw.Flush()
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List online devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *App) error {
				devices, err := app.GetDevices()
				if err != nil {
					return err
				}
				if outputJSON {
					if devices == nil {
						devices = []string{}
					}
					return writeJSON(cmd, devices)
				}
				if len(devices) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), faintStyle.Render("No devices connected"))
					return nil
				}
				for _, d := range devices {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			})
		},
	}
}

// ========================================
// Applications and prefixes
// ========================================

func newAppsCmd() *cobra.Command {
	var packageType string

	cmd := &cobra.Command{
		Use:   "apps <device>",
		Short: "List installed applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch packageType {
			case "all", "user", "system":
			default:
				return fmt.Errorf("invalid --type %q: use all, user or system", packageType)
			}

			return withApp(cmd, func(app *App) error {
				apps, err := app.GetInstalledApps(args[0])
				if err != nil {
					return err
				}
				filtered := filterApps(apps, packageType)
				if outputJSON {
					return writeJSON(cmd, filtered)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, headerStyle.Render("NAME")+"\t"+headerStyle.Render("PACKAGE")+"\t"+headerStyle.Render("TYPE"))
				for _, a := range filtered {
					kind := "user"
					if a.IsSystem {
						kind = faintStyle.Render("system")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", a.DisplayName, a.PackageName, kind)
				}
				tw.Flush()
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d package(s)\n", len(filtered))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&packageType, "type", "all", "Package type: all, user or system")
	return cmd
}

func filterApps(apps []types.InstalledApplication, packageType string) []types.InstalledApplication {
	filtered := make([]types.InstalledApplication, 0, len(apps))
	for _, a := range apps {
		if packageType == "all" || (packageType == "system") == a.IsSystem {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <device> <package>",
		Short: "Uninstall an application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *App) error {
				ok, err := app.UninstallApp(args[0], args[1])
				if err != nil {
					return err
				}
				if outputJSON {
					if err := writeJSON(cmd, map[string]any{"package": args[1], "success": ok}); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[1], statusLabel(ok))
				}
				if !ok {
					return fmt.Errorf("uninstall of %s failed", args[1])
				}
				return nil
			})
		},
	}
}

func newPrefixesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefixes <device>",
		Short: "Suggest package prefixes that blend in on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *App) error {
				prefixes, err := app.ScanTrustedPrefixes(args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(cmd, prefixes)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, headerStyle.Render("PREFIX")+"\t"+headerStyle.Render("COUNT")+"\t"+headerStyle.Render("SOURCE"))
				for _, p := range prefixes {
					source := p.Source
					if source == types.SourceRecommended {
						source = faintStyle.Render(source)
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Prefix, p.Count, source)
				}
				tw.Flush()
				return nil
			})
		},
	}
}

// ========================================
// Pipeline
// ========================================

func newProcessCmd() *cobra.Command {
	var (
		req   pipeline.Request
		tools pipeline.Tools
	)

	cmd := &cobra.Command{
		Use:   "process <apk>",
		Short: "Decompile, rename, rebuild, align, sign and optionally install an APK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SourceAPK = args[0]
			if abs, err := filepath.Abs(args[0]); err == nil {
				req.SourceAPK = abs
			}
			req.Tools = tools
			if req.InstallAfter && strings.TrimSpace(req.DeviceID) == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("--install has no effect without --device"))
			}

			return withApp(cmd, func(app *App) error {
				res, err := app.ProcessApk(req, progressObserver(cmd))
				if err != nil {
					return err
				}
				if outputJSON {
					if err := writeJSON(cmd, res); err != nil {
						return err
					}
				} else {
					printPipelineResult(cmd, res)
				}
				if !res.Success {
					return fmt.Errorf("%s step failed", res.Step)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Prefix, "prefix", "", "New package prefix, e.g. cn.chinapost")
	cmd.Flags().StringVar(&req.Suffix, "suffix", "", "Last package segment (default: derived from the file name)")
	cmd.Flags().StringVar(&req.DeviceID, "device", "", "Device to install on")
	cmd.Flags().BoolVar(&req.InstallAfter, "install", false, "Install the signed APK on --device")
	cmd.Flags().StringVar(&tools.Java, "java", "", "Override the java executable")
	cmd.Flags().StringVar(&tools.Apktool, "apktool", "", "Override the apktool.jar path")
	cmd.Flags().StringVar(&tools.Zipalign, "zipalign", "", "Override the zipalign path")
	cmd.Flags().StringVar(&tools.Apksigner, "apksigner", "", "Override the apksigner.jar path")
	cmd.Flags().StringVar(&tools.Keystore, "keystore", "", "Override the keystore path")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

// progressObserver prints each stage to stderr so stdout stays clean for --json
func progressObserver(cmd *cobra.Command) pipeline.Observer {
	start := time.Now()
	return func(stage types.Stage) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s\n",
			stageStyle.Render("▸"),
			string(stage),
			faintStyle.Render(time.Since(start).Round(time.Millisecond).String()))
	}
}

func printPipelineResult(cmd *cobra.Command, res types.PipelineResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s %s at %s\n", headerStyle.Render("Result:"), statusLabel(res.Success), res.Step)
	fmt.Fprintln(out, res.Message)
	if res.NewPackage != "" {
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Package:"), res.NewPackage)
	}
	if res.OutputPath != "" {
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Output:"), res.OutputPath)
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent repackaging runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *App) error {
				runs, err := app.ListRuns(limit)
				if err != nil {
					return err
				}
				if outputJSON {
					if runs == nil {
						runs = []types.RunRecord{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), faintStyle.Render("No runs recorded"))
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, strings.Join([]string{
					headerStyle.Render("STARTED"),
					headerStyle.Render("SOURCE"),
					headerStyle.Render("PACKAGE"),
					headerStyle.Render("STEP"),
					headerStyle.Render("STATUS"),
				}, "\t"))
				for _, r := range runs {
					started := time.UnixMilli(r.StartTime).Format("2006-01-02 15:04:05")
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						started, filepath.Base(r.SourceAPK), r.NewPackage, r.Step, statusLabel(r.Success))
				}
				tw.Flush()
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

// ========================================
// Config and MCP
// ========================================

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration in YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	path := resolvedConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operations over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *App) error {
				app.StartToolWatcher()
				return StartMCPServer(app)
			})
		},
	}
}
