// Package xhs is a client for the note platform's signed web API.
//
// Every request is paced by a ratelimit.Limiter and signed by a
// signer.Signer before it is sent. Responses are unwrapped from the
// platform's {success, code, msg, data} envelope and failures are mapped to
// typed errors from pkg/errors: body code 300013 and HTTP 429 become
// rate-limit errors, HTTP 461/471 become auth errors.
//
//	client := xhs.NewClientFromConfig(cfg, browserSigner, limiter, log)
//	page, err := client.UserNotes(ctx, accountID, "")
//	card, err := client.NoteDetail(ctx, page.Stubs[0].ItemID, page.Stubs[0].SecondaryToken)
package xhs
