// Package signer produces the per-request signature headers the platform
// API requires.
//
// The production implementation drives a headless browser that runs the
// platform's own signing routine. StaticSigner and SignerFunc stand in for
// it in tests and offline tooling.
package signer

import (
	"context"
	"net/http"
)

// Header names carried by every signed request
const (
	HeaderSignature = "x-s"
	HeaderTimestamp = "x-t"
)

// Headers are the signature values for one request
type Headers struct {
	XS string `json:"x-s"`
	XT string `json:"x-t"`
}

// Apply sets the signature headers on h
func (s Headers) Apply(h http.Header) {
	h.Set(HeaderSignature, s.XS)
	h.Set(HeaderTimestamp, s.XT)
}

// Signer signs one API request. uri is the request path with its query
// string; payload is the JSON body or nil for GET requests.
type Signer interface {
	Sign(ctx context.Context, uri string, payload any) (Headers, error)
}

// SignerFunc adapts a function to the Signer interface
type SignerFunc func(ctx context.Context, uri string, payload any) (Headers, error)

// Sign calls f
func (f SignerFunc) Sign(ctx context.Context, uri string, payload any) (Headers, error) {
	return f(ctx, uri, payload)
}

// StaticSigner returns the same headers for every request
type StaticSigner struct {
	Headers Headers
}

// Sign returns the fixed headers
func (s StaticSigner) Sign(ctx context.Context, uri string, payload any) (Headers, error) {
	if err := ctx.Err(); err != nil {
		return Headers{}, err
	}
	return s.Headers, nil
}
