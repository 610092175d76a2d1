// Package broker wraps NATS JetStream for the two durable channels this
// system needs:
//
//   - the tasks stream, a competing-consumers work queue carrying scheduled
//     task invocations, and
//   - the mailings stream, holding one record per mailing recipient under a
//     per-mailing subject so a worker crash mid-broadcast loses nothing:
//     un-acked records redeliver, acked recipients are never resent.
//
// Both streams use work-queue retention, so an acked record is gone for good.
package broker
