package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/presentation/formatter"
	"github.com/penwyp/go-trace-project/internal/util"
)

const (
	defaultConfigDir = "~/.go-trace-project"
	defaultLogFile   = "~/.go-trace-project/logs/app.log"
	envPrefix        = "GTP"
)

// app carries the resolved configuration of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "go-trace-project [flags]",
		Short: "Trace project model browser",
		Long: `go-trace-project keeps an in-memory tree of a trace analysis project in sync
with its folder on disk: traces, experiments, the analyses applicable to each
and the outputs of opened traces.

Examples:
  go-trace-project --project ~/traces/demo           # Print the project tree
  go-trace-project --project . --output json         # Tree as JSON
  go-trace-project init --project ~/traces/new       # Create the folder structure
  go-trace-project watch --project .                 # Reprint the tree on changes
  go-trace-project serve --project . --addr :8080    # Serve the tree over HTTP`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
		RunE: a.runTree,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ~/.go-trace-project/config.yaml)")

	// Project location
	flags.String("project", ".", "Project directory path")
	flags.String("label", "", "Project label shown in the tree")
	flags.String("catalog", "", "Catalog file with trace types and analyses (default built-in)")
	flags.String("config-root", "", "Folder holding configurable analysis configurations")
	flags.String("properties-dir", "", "Property store directory (default <project>/.project/properties)")
	flags.Bool("in-memory-properties", false, "Keep properties in memory only")
	_ = flags.MarkHidden("in-memory-properties")

	// Output configuration
	flags.StringP("output", "o", "text", "Output format (text, table, json, csv, summary)")
	flags.String("timezone", "Local", "Timezone for trace bounds (e.g., UTC, Europe/Paris)")
	flags.Bool("color", true, "Colorize text output")

	// System and debugging
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", defaultLogFile, "Log file path")
	flags.String("log-format", "text", "Log entry format (text, json)")
	flags.Int64("log-max-size", 10, "Rotate the log file past this many MiB (0 disables)")
	flags.Bool("debug", false, "Enable debug mode")

	rootCmd.Flags().BoolP("reset", "r", false, "Delete supplementary files of every trace before printing")

	rootCmd.AddCommand(
		a.newInitCmd(),
		a.newWatchCmd(),
		a.newServeCmd(),
		a.newTraceCmd(),
		a.newExperimentCmd(),
		a.newAnalysisCmd(),
	)
	return rootCmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(expandPath(a.cfgFile))
	} else {
		a.v.AddConfigPath(expandPath(defaultConfigDir))
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	logLevel := a.v.GetString("log-level")
	if a.v.GetBool("debug") {
		logLevel = "debug"
	}
	logFile := expandPath(a.v.GetString("log-file"))
	if err := ensureDir(filepath.Dir(logFile)); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	format, err := util.ParseLogFormat(a.v.GetString("log-format"))
	if err != nil {
		return err
	}
	util.InitLogger(util.LoggerConfig{
		Level:       logLevel,
		Format:      format,
		File:        logFile,
		MaxFileSize: a.v.GetInt64("log-max-size") << 20,
		Console:     a.v.GetBool("debug"),
	})

	return util.InitializeTimeProvider(a.v.GetString("timezone"))
}

// workspaceConfig maps the resolved settings onto a workspace configuration.
func (a *app) workspaceConfig() workspace.Config {
	cfg := workspace.Config{
		ProjectDir:         expandPath(a.v.GetString("project")),
		Label:              a.v.GetString("label"),
		InMemoryProperties: a.v.GetBool("in-memory-properties"),
	}
	if catalog := a.v.GetString("catalog"); catalog != "" {
		cfg.CatalogFile = expandPath(catalog)
	}
	if root := a.v.GetString("config-root"); root != "" {
		cfg.ConfigRoot = expandPath(root)
	}
	if dir := a.v.GetString("properties-dir"); dir != "" {
		cfg.PropertiesDir = expandPath(dir)
	}
	return cfg
}

// openWorkspace opens and refreshes the configured project. The caller
// closes the workspace.
func (a *app) openWorkspace() (*workspace.Workspace, error) {
	ws, err := workspace.Open(a.workspaceConfig())
	if err != nil {
		return nil, err
	}
	ws.Refresh()
	return ws, nil
}

func (a *app) printTree(cmd *cobra.Command, ws *workspace.Workspace) error {
	f, err := formatter.New(a.v.GetString("output"), cmd.OutOrStdout(), a.v.GetBool("color"))
	if err != nil {
		return err
	}
	return f.Format(formatter.Snapshot(ws.Project()))
}

func (a *app) runTree(cmd *cobra.Command, args []string) error {
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	if a.v.GetBool("reset") {
		if tf := ws.Project().TracesFolder(); tf != nil {
			for _, t := range tf.Traces() {
				t.DeleteSupplementaryResources()
			}
		}
		util.LogInfo("Supplementary files cleared")
	}

	return a.printTree(cmd, ws)
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
