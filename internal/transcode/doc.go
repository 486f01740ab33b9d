// Package transcode adapts an external asynchronous video-processing API.
//
// The provider accepts a source URL (or a direct upload), converts it into
// adaptive-bitrate streaming output, and exposes progress through a polled
// asset status. Its status field is the only authoritative completion signal;
// webhooks, when configured, are a latency optimisation layered on top of the
// pull path, never a replacement for it.
//
// Submission is never retried by this package: resubmitting a source can
// create a duplicate billable asset, so retry policy belongs to an operator,
// not an adapter.
package transcode
