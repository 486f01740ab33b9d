// Package api contains the HTTP handlers for the media pipeline: upload slot
// issuance, submission, asset reads, the provider webhook, and the health
// endpoint. Handlers translate between the JSON surface and the ingest
// service; they hold no pipeline logic of their own.
package api
