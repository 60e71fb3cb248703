// Package retry runs operations that may fail transiently.
//
// Do and DoWithResult call an operation up to MaxAttempts times, waiting
// between attempts according to a BackoffStrategy. No wait follows the final
// attempt. The wait itself goes through Config.Sleep so callers can record
// or skip it in tests; the default is Wait, which honours context
// cancellation.
//
//	record, err := retry.DoWithResult(func() (models.ItemRecord, error) {
//		return client.FetchDetail(ctx, stub)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 30 * time.Second},
//		RetryIf:     retry.RetryIfRateLimited,
//		Context:     ctx,
//	})
package retry
