package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jward/razel"
	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/config"
	"github.com/jward/razel/internal/files"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagFormat    string
	flagWorkspace string
	flagLogLevel  string
	flagIgnoreDev bool
	flagVendorDir string
	flagDigest    string
	flagIndexPath string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "razel",
	Short:         "A Bazel-compatible build tool",
	Long:          "Razel resolves the repositories of a Bazel workspace from its MODULE.bazel files and answers questions about them.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&flagWorkspace, "workspace", "", "directory to search for the workspace from (default: current directory)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.BoolVar(&flagIgnoreDev, "ignore_dev_dependency", false, "ignore dev_dependency declarations of non-root modules")
	pf.StringVar(&flagVendorDir, "vendor_dir", "", "directory holding fetched dependency repositories (default: external)")
	pf.StringVar(&flagDigest, "digest_function", "", "file digest function: sha256|sha1|md5|sha384|sha512|blake3")
	pf.StringVar(&flagIndexPath, "index_path", "", "resolution index path (default: .razel/index.db)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(modCmd)
	rootCmd.AddCommand(unimplementedCmd("build", "Build targets"))
	rootCmd.AddCommand(unimplementedCmd("test", "Build and test targets"))
	rootCmd.AddCommand(unimplementedCmd("run", "Build and run a target"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the razel version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputResult(cmd, CLIResult{Command: "version", Results: CLIVersion{Version: version}})
	},
}

// unimplementedCmd returns a command that fails loudly. Target graph
// construction and execution do not exist yet.
func unimplementedCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [targets...]",
		Short: short + " (not implemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputError(cmd, name, fmt.Errorf("%s: %w", name, bzlmod.ErrUnimplemented))
		},
	}
}

// session is the per-invocation state: settings and the open workspace.
type session struct {
	root   string
	cfg    *config.Config
	digest files.DigestFunction
	logger *log.Logger
	ws     *razel.Workspace
}

// loadSession finds the workspace and loads its configuration.
func loadSession(cmd *cobra.Command) (*session, error) {
	start := flagWorkspace
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting cwd: %w", err)
		}
		start = cwd
	}
	root, _, err := razel.FindWorkspaceRoot(start)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cmd.Context(), config.LoadOptions{WorkspaceRoot: root, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "razel", Level: level})
	if cfg.File != "" {
		logger.Debug("loaded configuration", "file", cfg.File)
	}
	return &session{root: root, cfg: cfg, digest: digest, logger: logger}, nil
}

// openWorkspace opens the workspace with the configured options followed
// by extra.
func (s *session) openWorkspace(ctx context.Context, extra ...razel.Option) (*razel.Workspace, error) {
	opts := []razel.Option{
		razel.WithLogger(s.logger),
		razel.WithIgnoreDevDependency(s.cfg.IgnoreDevDependency),
		razel.WithDigestFunction(s.digest),
		razel.WithLocator(&razel.VendorLocator{Dir: s.cfg.VendorDir, WorkspaceRoot: s.root}),
	}
	ws, err := razel.New(ctx, s.root, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	s.ws = ws
	return ws, nil
}

func (s *session) Close() error {
	if s.ws == nil {
		return nil
	}
	return s.ws.Close()
}
