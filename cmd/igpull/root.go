package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"igpull/pkg/config"
	"igpull/pkg/logger"
	"igpull/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile string
	logLevel   string
	quiet      bool
	noColor    bool

	out    io.Writer
	errOut io.Writer
}

// flags returns the persistent flags that were set on the command line,
// keyed the way config.MergeCommandLineFlags expects
func (g *globalOptions) flags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = g.logLevel
	}
	if g.noColor {
		flags["no-color"] = true
	}
	return flags
}

// loadConfig loads the configuration with extra command line overrides
func (g *globalOptions) loadConfig(cmd *cobra.Command, extra map[string]interface{}) (*config.Config, error) {
	flags := g.flags(cmd)
	for k, v := range extra {
		flags[k] = v
	}
	return config.Load(g.configFile, flags)
}

// setup loads the configuration and builds the logger and console
func (g *globalOptions) setup(cmd *cobra.Command, extra map[string]interface{}) (*config.Config, logger.Logger, *ui.Console, error) {
	cfg, err := g.loadConfig(cmd, extra)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.quiet && !cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = "warn"
	}

	log, err := logger.NewWithWriter(&cfg.Logging, g.errOut)
	if err != nil {
		return nil, nil, nil, err
	}

	console := ui.NewConsole(g.out, cfg.Logging.NoColor, g.quiet)
	ui.SetDefault(console)
	return cfg, log, console, nil
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globalOptions{out: out, errOut: errOut}
	dl := &downloadOptions{}

	cmd := &cobra.Command{
		Use:   "igpull [usernames...]",
		Short: "Download posts and highlights from public Instagram profiles",
		Long: `igpull downloads the photos and videos of Instagram profiles.

Requests are paced like a person browsing: a sliding window rate limit,
jittered delays between pages and carousel items, and longer rests every
few posts. Media is handed to aria2c in batches when it is installed, with a
recovery file so an interrupted run resumes where it stopped.

Highlights need a logged-in session. Export your browser cookies and either
pass --cookies FILE or import them once with 'igpull auth import'.`,
		Example: `  # Download the latest 50 posts of a profile
  igpull natgeo -n 50

  # Several profiles into ./media, keeping a dedup archive
  igpull natgeo nasa -o ./media -a archive.txt

  # Posts and highlights with a stored session
  igpull download natgeo --account main --highlights`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runDownload(cmd, g, dl, args)
		},
	}

	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "config file (default is ~/.config/igpull/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress progress and informational output")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")

	dl.register(cmd)

	cmd.SetVersionTemplate(`igpull {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newDownloadCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newAuthCmd(g))
	cmd.AddCommand(newCleanCmd(g))

	return cmd
}
