// Package transcodestub hosts a fake transcoding provider for tests. It
// mimics the provider's REST surface closely enough to exercise the real HTTP
// client: basic-auth enforcement, the {"data": ...} envelope, asset lifecycle
// transitions, and direct uploads.
package transcodestub
