// Package notifier is the asynchronous delivery pipeline behind the
// reminder scheduler.
//
// Notify only enqueues. A small worker pool drains the queue through a
// token-bucket limiter and hands each message to a transport.Sender,
// retrying transport errors with jittered exponential backoff. Identical
// messages inside the dedup window are dropped, and a bounded history of
// recent deliveries is kept for diagnostics.
package notifier
