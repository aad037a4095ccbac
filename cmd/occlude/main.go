package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/1broseidon/occlude/internal/config"
	"github.com/1broseidon/occlude/internal/daemon"
	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/ipc"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "resolve":
		os.Exit(runResolve(os.Args[2:]))
	case "reset":
		os.Exit(runReset(os.Args[2:]))
	case "mask":
		os.Exit(runMask(os.Args[2:]))
	case "insets":
		os.Exit(runInsets(os.Args[2:]))
	case "feed":
		os.Exit(runFeed(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: occlude <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the occlusion daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  resolve             Resolve masks for a capture interval")
	fmt.Fprintln(w, "  reset               Start a new recording session")
	fmt.Fprintln(w, "  mask                Mask a rect on the next frame only")
	fmt.Fprintln(w, "  insets              Set the static display insets")
	fmt.Fprintln(w, "  feed                Stream JSON-lines report batches to the daemon")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config init         Write a default config file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
}

// newFlagSet returns a flag set whose usage prints synopsis and description
// followed by the flag defaults.
func newFlagSet(name, synopsis, description string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: occlude "+synopsis)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, description)
		if fs.HasFlags() {
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Flags:")
			fs.PrintDefaults()
		}
	}
	return fs
}

// parseFlags returns -1 when parsing succeeded, otherwise the exit code.
func parseFlags(fs *pflag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}
	return -1
}

func runDaemon(args []string) int {
	fs := newFlagSet("daemon", "daemon [--config PATH]", "Run the occlusion daemon in the foreground.")
	configPath := fs.String("config", "", "Config file path (default: ~/.config/occlude/config.yaml)")
	noWatch := fs.Bool("no-watch", false, "Do not reload the config file when it changes")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	watchPath := path
	if *noWatch {
		watchPath = ""
	}
	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: watchPath,
		Logger:     logger,
		LevelVar:   levelVar,
	})
	if err != nil {
		logger.Error("failed to start daemon", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading config")
				d.Reload()
				continue
			}
			cancel()
			return
		}
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon failed", "error", err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := newFlagSet("status", "status [--json]", "Show daemon status via IPC.")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(status)
	}
	fmt.Printf("daemon_running:  %v\n", status.DaemonRunning)
	fmt.Printf("uptime_seconds:  %d\n", status.UptimeSeconds)
	fmt.Printf("frames:          %d", status.Frames)
	if status.Frames > 0 {
		fmt.Printf(" (%d..%d)", status.OldestFrame, status.NewestFrame)
	}
	fmt.Println()
	fmt.Printf("tracked_keys:    %d\n", status.TrackedKeys)
	fmt.Printf("queue_depth:     %d\n", status.QueueDepth)
	fmt.Printf("batches:         %d (dropped %d, bridge %d)\n", status.Batches, status.DroppedBatches, status.BridgeBatches)
	fmt.Printf("resolved:        %d (overruns %d)\n", status.Resolved, status.Overruns)
	fmt.Printf("insets:          left=%d %s (%s)\n", status.LeftPadding, status.Orientation, status.InsetsSource)
	return 0
}

func runResolve(args []string) int {
	fs := newFlagSet("resolve", "resolve --start MS --end MS [--json]",
		"Resolve the rects to mask for a capture interval. The rects also go to the daemon's capturer.")
	start := fs.Int64("start", 0, "Capture start (monotonic ms)")
	end := fs.Int64("end", 0, "Capture end (monotonic ms, default: start)")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if !fs.Changed("start") {
		fmt.Fprintln(os.Stderr, "--start is required")
		fs.Usage()
		return 2
	}
	if !fs.Changed("end") {
		*end = *start
	}

	client := ipc.NewClient()
	res, err := client.Resolve(*start, *end)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(res)
	}
	if res.HasWindow {
		fmt.Printf("window: %d..%d (evicted %d)\n", res.Window.Start, res.Window.End, res.Evicted)
	} else {
		fmt.Println("window: none")
	}
	for _, r := range res.Rects {
		fmt.Println(r)
	}
	return 0
}

func runReset(args []string) int {
	fs := newFlagSet("reset", "reset", "Discard all frames and visibility state and start a new session.")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "reset takes no arguments")
		fs.Usage()
		return 2
	}

	if err := ipc.NewClient().ResetSession(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runMask(args []string) int {
	fs := newFlagSet("mask", "mask X0 Y0 X1 Y1",
		"Mask a rect, in native screen pixels, on the next captured frame only.")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	r, err := parseRect(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 2
	}
	if err := ipc.NewClient().OccludeNextFrame(r); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func parseRect(args []string) (geometry.Rect, error) {
	if len(args) != 4 {
		return geometry.Rect{}, fmt.Errorf("expected 4 coordinates, got %d", len(args))
	}
	var v [4]int
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("invalid coordinate %q", a)
		}
		v[i] = n
	}
	r := geometry.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	if !r.Valid() {
		return geometry.Rect{}, fmt.Errorf("rect %s has right < left or bottom < top", r)
	}
	return r, nil
}

func runInsets(args []string) int {
	fs := newFlagSet("insets", "insets --left N [--orientation NAME]",
		"Set the display insets used as the horizontal offset of every rect.")
	left := fs.Int("left", 0, "Left inset in native pixels")
	orientation := fs.String("orientation", "portrait", "portrait, landscape-left, portrait-upside-down or landscape-right")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if !fs.Changed("left") {
		fmt.Fprintln(os.Stderr, "--left is required")
		fs.Usage()
		return 2
	}

	err := ipc.NewClient().SetInsets(ipc.SetInsetsPayload{Left: *left, Orientation: *orientation})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  occlude config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  occlude config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  occlude config init [--path PATH] [--force]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := newFlagSet("validate", "config validate [--path PATH]", "Validate a config file.")
		path := fs.String("path", "", "Config file path (default: ~/.config/occlude/config.yaml)")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}

		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := newFlagSet("print", "config print [--path PATH] [--defaults]", "Print the effective configuration as YAML.")
		path := fs.String("path", "", "Config file path (default: ~/.config/occlude/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			var err error
			if cfg, err = loadConfig(*path); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
		data, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "init":
		fs := newFlagSet("init", "config init [--path PATH] [--force]",
			"Write the built-in defaults to a config file. A .toml path writes TOML.")
		path := fs.String("path", "", "Config file path (default: ~/.config/occlude/config.yaml)")
		force := fs.Bool("force", false, "Overwrite an existing file")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}

		target := *path
		if target == "" {
			var err error
			if target, err = config.DefaultConfigPath(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
		if _, err := os.Stat(target); err == nil && !*force {
			fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", target)
			return 1
		}
		if err := config.DefaultConfig().Save(target); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("wrote %s\n", target)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		return 2
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
