// Package ratelimit throttles API requests with a sliding window.
//
// The limiter keeps the timestamps of recent requests. When no proxy is in
// use and the window already holds MaxRequests entries, WaitIfNeeded sleeps
// until the oldest entry leaves the window plus a safety margin. Every call
// then sleeps a randomized delay: exponentially distributed and clamped
// without a proxy, a short uniform delay with one.
//
//	limiter := ratelimit.New(ratelimit.DefaultSettings(), false, log)
//	if err := limiter.WaitIfNeeded(ctx); err != nil {
//		return err
//	}
//	resp, err := send(req)
//	limiter.RecordRequest()
package ratelimit
