package scraper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igpull/pkg/errors"
	"igpull/pkg/models"
)

func withHighlights(f *fixture) {
	f.api.highlights = []models.Highlight{
		{ID: "1", Title: "Travel", MediaCount: 2},
		{ID: "2", Title: "travel", MediaCount: 1},
	}
	f.api.items = map[string][]models.HighlightItem{
		"1": {
			{MediaID: "100", URL: "https://cdn.example/100.jpg"},
			{MediaID: "101", URL: "https://cdn.example/101.mp4", IsVideo: true},
		},
		"2": {
			{MediaID: "200", URL: "https://cdn.example/200.jpg"},
		},
	}
}

func (f *fixture) highlightPath(slug, name string) string {
	return filepath.Join(f.dir, "out", "natgeo", "highlights", slug, name)
}

func TestDownloadHighlightsDirect(t *testing.T) {
	f := newFixture(t)
	withHighlights(f)
	require.NoError(t, f.ledger.Add("200"))
	d := f.downloader(t, false, 0)

	stats, err := d.DownloadHighlights(context.Background(), "natgeo")
	require.NoError(t, err)

	assert.Equal(t, Stats{Downloaded: 2, Skipped: 1}, stats)
	assert.FileExists(t, f.highlightPath("travel", "natgeo_100.jpg"))
	assert.FileExists(t, f.highlightPath("travel", "natgeo_101.mp4"))
	assert.DirExists(t, filepath.Dir(f.highlightPath("travel_2", "x")))
	assert.True(t, f.ledger.Contains("101"))

	assert.Equal(t, 1, f.pacer.tray)
	assert.Equal(t, 2, f.pacer.switches)
	assert.Equal(t, "natgeo highlights", f.progress.label)
	assert.Equal(t, 3, f.progress.total)
	assert.Equal(t, 3, f.progress.increment)
}

func TestDownloadHighlightsBatch(t *testing.T) {
	f := newFixture(t)
	withHighlights(f)
	f.transfer.skip = map[string]bool{"natgeo_200.jpg": true}
	d := f.downloader(t, true, 0)

	stats, err := d.DownloadHighlights(context.Background(), "natgeo")
	require.NoError(t, err)

	assert.Equal(t, Stats{Downloaded: 2, Failed: 1}, stats)
	assert.Equal(t, []string{".natgeo_hl_travel.aria2.txt", ".natgeo_hl_travel_2.aria2.txt"}, f.transfer.owners)
	assert.NoFileExists(t, f.highlightPath("travel", ".natgeo_hl_travel.aria2.txt"))
	assert.FileExists(t, f.highlightPath("travel_2", ".natgeo_hl_travel_2.aria2.txt"))

	// the next run finishes the kept batch first
	f.transfer.skip = nil
	stats, err = d.DownloadHighlights(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, Stats{Downloaded: 1, Skipped: 3}, stats)
	assert.True(t, f.ledger.Contains("200"))
}

func TestDownloadHighlightsNone(t *testing.T) {
	f := newFixture(t)
	d := f.downloader(t, false, 0)

	stats, err := d.DownloadHighlights(context.Background(), "natgeo")
	require.NoError(t, err)

	assert.Equal(t, Stats{}, stats)
	assert.True(t, f.log.HasMessage("no highlights found"))
}

func TestDownloadHighlightsNeedsCookies(t *testing.T) {
	f := newFixture(t)
	f.api.highlightsErr = errs.AuthenticationRequired("Highlights")
	d := f.downloader(t, false, 0)

	_, err := d.DownloadHighlights(context.Background(), "natgeo")

	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Zero(t, f.pacer.switches)
}
