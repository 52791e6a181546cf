// Package instagram talks to Instagram's web API and media CDN.
//
// Client is the resilient transport every API call goes through: it waits
// on the rate limiter, sends each attempt through the current proxy,
// retries transport failures with exponential backoff and reacts to
// throttling by rotating the proxy, waiting and starting a fresh session.
// On top of it sit the profile lookups (ProfileResolver), the paged posts
// feed (PostsFetcher) and the cookie-only highlight endpoints.
//
// MediaDownloader fetches photos and videos from the CDN with minimal
// headers and writes them atomically.
//
//	client := instagram.New(instagram.Options{}, limiter, rotator, log)
//	ref, err := instagram.NewProfileResolver(client).ResolveProfile(ctx, "natgeo")
//	if err != nil {
//	    return err
//	}
//	it := client.Posts(ref.UserID, 0, pagination.Options{Pacer: simulator})
//	for it.Next(ctx) {
//	    post := it.Item()
//	    ...
//	}
package instagram
