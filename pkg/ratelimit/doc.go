// Package ratelimit paces requests to the upstream API.
//
// TokenBucket wraps golang.org/x/time/rate for steady pacing. Cooloff is a
// shared quiet period: when one request is told to back off, every worker
// waits it out before its next request.
//
//	if err := cooloff.Wait(ctx); err != nil {
//	    return err
//	}
//	if err := bucket.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
