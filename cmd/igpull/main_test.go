package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igpull/pkg/auth"
	"igpull/pkg/config"
	"igpull/pkg/logger"
)

const testCookies = "# Netscape HTTP Cookie File\n" +
	".instagram.com\tTRUE\t/\tTRUE\t1767225600\tsessionid\t1234%3Aabcdefghijkl\n" +
	".instagram.com\tTRUE\t/\tTRUE\t1767225600\tcsrftoken\tYTQHujAgMhyveLvv\n"

// isolate keeps the host's config, .env and cookie variables out of a test
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, env := range []string{
		"IGPULL_COOKIES", "IGPULL_PROXY", "IGPULL_PROXY_FILE", "IGPULL_OUTPUT_DIR",
		"IGPULL_LOG_LEVEL", "IGPULL_LOG_FILE", "IGPULL_ARCHIVE_DIR", "IGPULL_AUTO_ARCHIVE",
	} {
		t.Setenv(env, "")
	}
	return home
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func useMockCredentials(t *testing.T) *auth.MockStore {
	t.Helper()
	manager, store := auth.NewMockManager()
	previous := newCredentialManager
	newCredentialManager = func() (*auth.Manager, error) { return manager, nil }
	t.Cleanup(func() { newCredentialManager = previous })
	return store
}

func useStdin(t *testing.T, text string) {
	t.Helper()
	previous := stdin
	stdin = strings.NewReader(text)
	t.Cleanup(func() { stdin = previous })
}

func TestExitCode(t *testing.T) {
	var errOut bytes.Buffer
	ctx := context.Background()

	assert.Equal(t, 0, exitCode(ctx, nil, &errOut))
	assert.Equal(t, exitFailure, exitCode(ctx, errors.New("boom"), &errOut))
	assert.Equal(t, "Error: boom\n", errOut.String())

	errOut.Reset()
	assert.Equal(t, 7, exitCode(ctx, &exitError{code: 7, err: errors.New("shown")}, &errOut))
	assert.Empty(t, errOut.String())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, exitInterrupt, exitCode(cancelled, errors.New("read: closed"), &errOut))
	assert.Equal(t, exitInterrupt, exitCode(ctx, fmt.Errorf("page: %w", context.Canceled), &errOut))
}

func TestParseUsernames(t *testing.T) {
	usernames, err := parseUsernames([]string{"@natgeo", "https://www.instagram.com/nasa/", "natgeo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"natgeo", "nasa"}, usernames)

	_, err = parseUsernames([]string{"natgeo", "not a user"})
	assert.ErrorContains(t, err, "invalid username")
}

func TestDownloadFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "download"}
	o := &downloadOptions{}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"-o", "media", "-n", "5", "--no-aria2", "--proxy", "http://p:1"}))

	flags := o.flags(cmd)
	assert.Equal(t, 5, o.limit)
	assert.Equal(t, "media", flags["output"])
	assert.Equal(t, true, flags["no-aria2"])
	assert.Equal(t, "http://p:1", flags["proxy"])
	_, set := flags["skip-existing"]
	assert.False(t, set, "an untouched --skip-existing leaves the config value alone")
}

func TestDownloadFlagsSkipExisting(t *testing.T) {
	cmd := &cobra.Command{Use: "download"}
	o := &downloadOptions{}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--skip-existing=false"}))

	assert.Equal(t, false, o.flags(cmd)["skip-existing"])
}

func TestDownloadRejectsInvalidUsername(t *testing.T) {
	isolate(t)

	code, _, errOut := execute(t, "not a user")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "invalid username")
}

func TestHighlightsNeedCookies(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefault(cfgPath))

	code, _, errOut := execute(t, "download", "natgeo", "--highlights", "--config", cfgPath)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "--highlights needs cookies")
}

func TestConfigInitShowPath(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "igpull", "config.yaml")

	code, out, _ := execute(t, "config", "init", "--config", cfgPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, cfgPath)
	assert.FileExists(t, cfgPath)

	code, _, errOut := execute(t, "config", "init", "--config", cfgPath)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "already exists")

	code, out, _ = execute(t, "config", "path", "--config", cfgPath)
	assert.Equal(t, 0, code)
	assert.Equal(t, cfgPath+"\n", out)

	code, out, _ = execute(t, "config", "show", "--config", cfgPath)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "batch_size: 50")
	assert.Contains(t, out, "max_requests: 75")
}

func TestConfigPathNotCreated(t *testing.T) {
	home := isolate(t)

	code, out, _ := execute(t, "config", "path")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, filepath.Join(home, ".config", "igpull", "config.yaml"))
	assert.Contains(t, out, "not created")
}

func TestConfigValidate(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cookies := filepath.Join(dir, "cookies.txt")
	require.NoError(t, os.WriteFile(cookies, []byte(testCookies), 0600))
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(
		"client:\n  cookies: %s\noutput:\n  base_directory: %s\n", cookies, filepath.Join(dir, "out"))), 0600))

	code, out, errOut := execute(t, "config", "validate", "--config", cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Cookies: true")
	assert.DirExists(t, filepath.Join(dir, "out"))

	require.NoError(t, os.WriteFile(cookies, []byte("garbage\n"), 0600))
	code, _, errOut = execute(t, "config", "validate", "--config", cfgPath)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "cookies")
}

func TestAuthImportListExportRemove(t *testing.T) {
	isolate(t)
	store := useMockCredentials(t)

	useStdin(t, testCookies)
	code, out, errOut := execute(t, "auth", "import", "--account", "main", "--user-agent", "Agent/1.0", "--no-color")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `Stored session "main"`)
	assert.Equal(t, 1, store.Count())

	code, out, _ = execute(t, "auth", "list")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "Cookies: sessionid, csrftoken")
	assert.Contains(t, out, "User agent: Agent/1.0")
	assert.NotContains(t, out, "abcdefghijkl")

	dir := t.TempDir()
	code, out, _ = execute(t, "auth", "export", "main", "--dir", dir)
	assert.Equal(t, 0, code)
	assert.Equal(t, filepath.Join(dir, "main.cookies.txt")+"\n", out)

	code, _, _ = execute(t, "auth", "remove", "main")
	assert.Equal(t, 0, code)
	assert.Equal(t, 0, store.Count())

	code, _, errOut = execute(t, "auth", "remove", "main")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "credentials not found")
}

func TestAuthImportFromFile(t *testing.T) {
	isolate(t)
	store := useMockCredentials(t)
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(testCookies), 0600))

	code, _, errOut := execute(t, "auth", "import", path, "--account", "alt")
	require.Equal(t, 0, code, errOut)

	account, ok := store.Peek("alt")
	require.True(t, ok)
	assert.Equal(t, testCookies, account.Cookies)
}

func TestAuthImportWithoutInputShowsGuide(t *testing.T) {
	isolate(t)
	useMockCredentials(t)
	useStdin(t, "")

	code, out, errOut := execute(t, "auth", "import", "--account", "main")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "EXPORTING INSTAGRAM COOKIES")
	assert.Contains(t, errOut, "no cookies given")
}

func TestAuthImportRejectsLoggedOutCookies(t *testing.T) {
	isolate(t)
	store := useMockCredentials(t)
	useStdin(t, ".instagram.com\tTRUE\t/\tTRUE\t0\tcsrftoken\tabc\n")

	code, _, errOut := execute(t, "auth", "import", "--account", "main")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "sessionid")
	assert.Equal(t, 0, store.Count())
}

func TestResolveSession(t *testing.T) {
	isolate(t)
	log := logger.NewTestLogger()

	cfg := config.DefaultConfig()
	sess, err := resolveSession(cfg, "", log)
	require.NoError(t, err)
	assert.Nil(t, sess)

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(testCookies), 0600))
	cfg.Client.CookiesFile = path
	sess, err = resolveSession(cfg, "ignored", log)
	require.NoError(t, err)
	assert.Len(t, sess.cookies, 2)
	assert.Equal(t, path, sess.source)

	store := useMockCredentials(t)
	require.NoError(t, store.Store(&auth.Account{Username: "main", Cookies: testCookies, UserAgent: "Agent/1.0"}))
	cfg.Client.CookiesFile = ""
	sess, err = resolveSession(cfg, "main", log)
	require.NoError(t, err)
	assert.Equal(t, "Agent/1.0", sess.userAgent)
	assert.Equal(t, "account main", sess.source)

	_, err = resolveSession(cfg, "missing", log)
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
}

func TestResolveSessionBadCookiesFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Client.CookiesFile = filepath.Join(t.TempDir(), "missing.txt")

	_, err := resolveSession(cfg, "", logger.NewTestLogger())
	assert.ErrorContains(t, err, "failed to read cookies")
}

func TestPipelineDisablesProxyWithCookies(t *testing.T) {
	log := logger.NewTestLogger()
	cfg := config.DefaultConfig()
	cfg.Proxy.Proxy = "http://127.0.0.1:8080"
	cfg.Download.DisableAria2 = true

	p, err := newPipeline(cfg, &session{source: "test"}, true, &bytes.Buffer{}, log)
	require.NoError(t, err)
	assert.False(t, p.rotator.Enabled())
	assert.Nil(t, p.transfer)
	assert.Nil(t, p.progress)
	assert.True(t, log.HasMessage("proxies are disabled while cookies are in use"))

	p, err = newPipeline(cfg, nil, false, &bytes.Buffer{}, log)
	require.NoError(t, err)
	assert.True(t, p.rotator.Enabled())
	assert.NotNil(t, p.progress)
}

func TestPipelineDownloaderUsesProfileArchive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Output.AutoArchive = true
	cfg.Output.ArchiveDir = t.TempDir()

	p, err := newPipeline(cfg, nil, true, &bytes.Buffer{}, logger.NewTestLogger())
	require.NoError(t, err)

	d, ledger, err := p.downloader("natgeo")
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Equal(t, filepath.Join(cfg.Output.ArchiveDir, "natgeo.txt"), ledger.Path())
}

func TestCleanRemovesOrphanedSidecars(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefault(cfgPath))

	out := t.TempDir()
	dir := filepath.Join(out, "natgeo")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "natgeo_Gone.json"),
		[]byte(`{"shortcode": "Gone", "files": ["natgeo_Gone.jpg"]}`), 0644))

	code, stdout, errOut := execute(t, "clean", "natgeo", "-o", out, "--config", cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "natgeo: 1 orphaned sidecars removed")
	assert.NoFileExists(t, filepath.Join(dir, "natgeo_Gone.json"))
}
