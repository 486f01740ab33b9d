// Package ingest orchestrates the media pipeline: it issues upload slots,
// hands stored objects to the transcoding provider, and folds provider state
// back into the asset record.
//
// The orchestrator owns every MediaAsset write. Status moves forward only
// (pending, submitting, processing, then ready or errored), so concurrent
// refreshes resolve to last-write-wins over equal-or-newer states and a stale
// poll can never rewind a finished asset.
package ingest
