// Package mailing implements broadcast lifecycle and delivery.
//
// A mailing's recipients live as durable broker records, one per user,
// tagged with the mailing id, not as an in-memory slice. The Manager writes
// that stream at creation time and purges it on removal; the Pipeline drains
// it one record per fetch cycle, resolving each recipient to ack (delivered
// or permanently unreachable) or nak-with-delay (rate limited) before
// fetching the next. A fetch that times out with zero records means the
// mailing is drained.
package mailing
