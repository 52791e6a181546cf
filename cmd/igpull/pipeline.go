package main

import (
	"fmt"
	"io"
	"net/http"

	"igpull/internal/aria2"
	"igpull/pkg/archive"
	"igpull/pkg/auth"
	"igpull/pkg/batch"
	"igpull/pkg/behavior"
	"igpull/pkg/config"
	"igpull/pkg/instagram"
	"igpull/pkg/logger"
	"igpull/pkg/pagination"
	"igpull/pkg/proxy"
	"igpull/pkg/ratelimit"
	"igpull/pkg/scraper"
	"igpull/pkg/ui"
)

// newCredentialManager is replaced in tests
var newCredentialManager = func() (*auth.Manager, error) {
	return auth.NewManager("")
}

// session is the cookie session a run authenticates with
type session struct {
	cookies   []*http.Cookie
	userAgent string
	source    string
}

// resolveSession picks the cookies for this run: an explicit cookies file
// first, then a stored account. No session is not an error.
func resolveSession(cfg *config.Config, account string, log logger.Logger) (*session, error) {
	if cfg.Client.CookiesFile != "" {
		cookies, err := instagram.ParseCookiesFile(cfg.Client.CookiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read cookies: %w", err)
		}
		if !instagram.HasCookie(cookies, auth.SessionCookie) {
			log.WarnWithFields("cookies file has no session cookie", map[string]interface{}{
				"file": cfg.Client.CookiesFile,
			})
		}
		return &session{cookies: cookies, source: cfg.Client.CookiesFile}, nil
	}

	if account == "" {
		return nil, nil
	}

	manager, err := newCredentialManager()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	stored, err := manager.Retrieve(account)
	if err != nil {
		return nil, fmt.Errorf("%w (see 'igpull auth list')", err)
	}
	cookies, err := stored.HTTPCookies()
	if err != nil {
		return nil, fmt.Errorf("stored cookies for %s are unreadable: %w", account, err)
	}
	return &session{cookies: cookies, userAgent: stored.UserAgent, source: "account " + stored.Username}, nil
}

// pipeline holds the collaborators shared by every profile of a run
type pipeline struct {
	cfg      *config.Config
	client   *instagram.Client
	rotator  *proxy.Rotator
	pacer    *behavior.Simulator
	media    *instagram.MediaDownloader
	transfer batch.Transfer
	progress scraper.Progress
	quiet    bool
	log      logger.Logger
}

func newPipeline(cfg *config.Config, sess *session, quiet bool, progressOut io.Writer, log logger.Logger) (*pipeline, error) {
	rotator := proxy.New(nil, cfg.Proxy.RotateEvery, log)
	if sess == nil {
		var err error
		rotator, err = proxy.Load(cfg.Proxy.Proxy, cfg.Proxy.ProxyFile, cfg.Proxy.RotateEvery, log)
		if err != nil {
			return nil, fmt.Errorf("failed to load proxies: %w", err)
		}
	} else if cfg.Proxy.Proxy != "" || cfg.Proxy.ProxyFile != "" {
		// cookies and proxies are never combined
		log.Warn("proxies are disabled while cookies are in use")
	}

	limiter := ratelimit.New(ratelimit.SettingsFromConfig(cfg.RateLimit), rotator.Enabled(), log)

	opts := instagram.OptionsFromConfig(cfg.Client)
	opts.PageSize = cfg.Pagination.PageSize
	if sess != nil {
		opts.Cookies = sess.cookies
		if sess.userAgent != "" {
			opts.UserAgent = sess.userAgent
		}
	}
	client := instagram.New(opts, limiter, rotator, log)

	p := &pipeline{
		cfg:     cfg,
		client:  client,
		rotator: rotator,
		pacer:   behavior.New(behavior.SettingsFromConfig(cfg.Behavior), rotator.Enabled(), log),
		media:   instagram.NewMediaDownloader(instagram.MediaOptionsFromConfig(cfg.Download, opts.UserAgent), log),
		quiet:   quiet,
		log:     log,
	}
	if !cfg.Download.DisableAria2 {
		p.transfer = aria2.New(cfg.Download, quiet, log)
	}
	if !quiet {
		p.progress = ui.NewProgress(progressOut, cfg.Logging.NoColor)
	}
	return p, nil
}

// downloader builds the downloader for one profile, with that profile's
// archive ledger
func (p *pipeline) downloader(username string) (*scraper.Downloader, *archive.Ledger, error) {
	ledger, err := archive.Open(p.cfg.ArchivePath(username))
	if err != nil {
		return nil, nil, err
	}

	d, err := scraper.New(scraper.Options{
		OutputDir:    p.cfg.Output.BaseDirectory,
		SkipExisting: p.cfg.Download.SkipExisting,
		UseBatch:     p.transfer != nil,
		BatchSize:    p.cfg.Download.BatchSize,
		Quiet:        p.quiet,
		SaveMetadata: p.cfg.Output.SaveMetadata,
		Pagination: pagination.Options{
			PageRetries: p.cfg.Pagination.PageRetries,
			PageBackoff: p.cfg.Pagination.PageBackoff,
			Logger:      p.log,
		},
	}, scraper.Dependencies{
		API:      p.client,
		Resolver: instagram.NewProfileResolver(p.client),
		Media:    p.media,
		Pacer:    p.pacer,
		Transfer: p.transfer,
		Ledger:   ledger,
		Progress: p.progress,
		Logger:   p.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, ledger, nil
}
