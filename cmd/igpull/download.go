package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	errs "igpull/pkg/errors"
	"igpull/pkg/instagram"
	"igpull/pkg/scraper"
	"igpull/pkg/ui"
)

// downloadOptions are the flags of a download run
type downloadOptions struct {
	output       string
	limit        int
	skipExisting bool
	archive      string
	proxy        string
	proxyFile    string
	cookies      string
	account      string
	highlights   bool
	noAria2      bool
	metadata     bool
	notify       bool
}

func (o *downloadOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "base directory for downloads (default: current directory)")
	f.IntVarP(&o.limit, "limit", "n", 0, "maximum number of posts per profile (0 = all)")
	f.BoolVar(&o.skipExisting, "skip-existing", true, "skip files that already exist")
	f.StringVarP(&o.archive, "archive", "a", "", "archive file of downloaded shortcodes, shared by all profiles")
	f.StringVar(&o.proxy, "proxy", "", "proxy URL for API requests")
	f.StringVar(&o.proxyFile, "proxy-file", "", "file with one proxy URL per line, rotated")
	f.StringVar(&o.cookies, "cookies", "", "Netscape cookies.txt for authenticated requests")
	f.StringVar(&o.account, "account", "", "use a session stored with 'igpull auth import'")
	f.BoolVar(&o.highlights, "highlights", false, "also download story highlights (needs cookies)")
	f.BoolVar(&o.noAria2, "no-aria2", false, "download files one by one instead of through aria2c")
	f.BoolVar(&o.metadata, "metadata", false, "write a JSON sidecar with each post's details")
	f.BoolVar(&o.notify, "notify", false, "send a desktop notification when the run ends")
}

// flags returns the download flags that override the configuration
func (o *downloadOptions) flags(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{
		"output":     o.output,
		"archive":    o.archive,
		"proxy":      o.proxy,
		"proxy-file": o.proxyFile,
		"cookies":    o.cookies,
		"no-aria2":   o.noAria2,
		"metadata":   o.metadata,
	}
	if cmd.Flags().Changed("skip-existing") {
		flags["skip-existing"] = o.skipExisting
	}
	return flags
}

func newDownloadCmd(g *globalOptions) *cobra.Command {
	o := &downloadOptions{}
	cmd := &cobra.Command{
		Use:     "download <username> [usernames...]",
		Aliases: []string{"dl"},
		Short:   "Download the posts of one or more profiles",
		Long: `Download the posts of one or more profiles, and optionally their
highlights, into <output>/<username>/.

Profiles are processed one after another. A profile that fails does not
stop the others; the exit code is 1 when any profile failed.`,
		Example: `  igpull download natgeo
  igpull download natgeo nasa -n 100 --no-aria2
  igpull download natgeo --cookies cookies.txt --highlights`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, g, o, args)
		},
	}
	o.register(cmd)
	return cmd
}

// parseUsernames normalises the arguments, dropping duplicates. Any
// invalid name fails the whole run before a request is made.
func parseUsernames(args []string) ([]string, error) {
	seen := make(map[string]bool, len(args))
	var usernames []string
	for _, arg := range args {
		username := instagram.SanitizeUsername(arg)
		if !instagram.IsValidUsername(username) {
			return nil, fmt.Errorf("invalid username: %q", arg)
		}
		if seen[username] {
			continue
		}
		seen[username] = true
		usernames = append(usernames, username)
	}
	return usernames, nil
}

func runDownload(cmd *cobra.Command, g *globalOptions, o *downloadOptions, args []string) error {
	ctx := cmd.Context()

	usernames, err := parseUsernames(args)
	if err != nil {
		return err
	}

	cfg, log, console, err := g.setup(cmd, o.flags(cmd))
	if err != nil {
		return err
	}
	log = log.WithField("version", version)

	sess, err := resolveSession(cfg, o.account, log)
	if err != nil {
		return err
	}
	if o.highlights && sess == nil {
		return errors.New("--highlights needs cookies: pass --cookies FILE or --account NAME")
	}

	p, err := newPipeline(cfg, sess, g.quiet, g.out, log)
	if err != nil {
		return err
	}

	console.Logo()
	console.Info("Output", cfg.Output.BaseDirectory)
	if sess != nil {
		console.Info("Session", sess.source)
	}
	if p.rotator.Enabled() {
		console.Info("Proxies", strconv.Itoa(p.rotator.Len()))
	}

	var failed []string
	for _, username := range usernames {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		console.Highlight("» " + username)
		if err := downloadOne(cmd, p, console, o, username); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.ErrorWithFields("profile download failed", map[string]interface{}{
				"username": username,
				"error":    err.Error(),
			})
			console.Error(username, describe(err))
			failed = append(failed, username)
		}
	}

	notifier := ui.NewNotifier(console, o.notify)
	if len(failed) > 0 {
		msg := fmt.Sprintf("%d of %d profiles failed", len(failed), len(usernames))
		notifier.SendError("igpull", msg)
		return &exitError{code: exitFailure, err: errors.New(msg)}
	}
	notifier.SendSuccess("igpull", fmt.Sprintf("%d profiles done", len(usernames)))
	return nil
}

func downloadOne(cmd *cobra.Command, p *pipeline, console *ui.Console, o *downloadOptions, username string) error {
	ctx := cmd.Context()

	d, ledger, err := p.downloader(username)
	if err != nil {
		return err
	}
	if ledger.Enabled() {
		console.Dim(fmt.Sprintf("archive %s (%d entries)", ledger.Path(), ledger.Len()))
	}

	stats, err := d.DownloadProfile(ctx, username, o.limit)
	printStats(console, "posts", stats)
	if err != nil {
		return err
	}

	if o.highlights {
		hstats, err := d.DownloadHighlights(ctx, username)
		printStats(console, "highlights", hstats)
		if err != nil {
			return fmt.Errorf("highlights: %w", err)
		}
	}
	return nil
}

func printStats(console *ui.Console, what string, stats scraper.Stats) {
	line := fmt.Sprintf("%s: %d downloaded, %d skipped", what, stats.Downloaded, stats.Skipped)
	if stats.Failed > 0 {
		line += fmt.Sprintf(", %d files failed", stats.Failed)
	}
	if stats.Truncated {
		line += " (incomplete, a page could not be fetched)"
	}
	if stats.Failed > 0 || stats.Truncated {
		console.Warning(line)
		return
	}
	console.Success(line)
}

// describe turns typed errors into a hint for the user
func describe(err error) string {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeNotFound:
		return "profile not found: " + err.Error()
	case errs.ErrorTypePermission:
		return "profile is private or unavailable: " + err.Error()
	case errs.ErrorTypeAuth:
		return err.Error() + " (pass --cookies FILE or --account NAME)"
	case errs.ErrorTypeRateLimit:
		return "rate limited, try again later: " + err.Error()
	default:
		return err.Error()
	}
}
