// Package ratelimit paces requests to the platform API.
//
// TokenBucket wraps golang.org/x/time/rate with a per-minute configuration
// and can be retuned at runtime. It complements the crawler's fixed per-item
// and per-page delays: those space out work inside one account, the bucket
// caps the total request rate across all workers.
package ratelimit
