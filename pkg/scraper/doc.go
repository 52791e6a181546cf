// Package scraper drives the download of Instagram profiles.
//
// A Downloader resolves a profile, walks its posts through a
// pagination.Iterator and saves every photo and video under
// <output>/<username>. Files are named {username}_{shortcode}.{ext}, with an
// _{index} suffix for carousel items, and highlights go to
// <output>/<username>/highlights/<slug>.
//
// Two download paths exist:
//
//   - batch: media is queued and handed to the bulk transfer (aria2c)
//     every BatchSize posts. Each batch is written to a recovery file
//     first, so an interrupted run is finished by the next one.
//   - direct: each file is fetched in turn through the media downloader,
//     with a short pause between carousel items.
//
// The batch path is used when it is enabled and the transfer tool is
// installed; when the tool disappears mid-run the pending batch is
// downloaded directly instead.
//
// Finished post keys go to the archive ledger so later runs skip them.
package scraper
