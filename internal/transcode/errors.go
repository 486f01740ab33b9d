package transcode

import (
	"fmt"
	"strings"
)

// ProviderError carries a provider rejection back to the orchestrator with
// the provider's own wording preserved. Auth failures, quota exhaustion,
// malformed sources, and unsupported codecs all surface through this type.
type ProviderError struct {
	StatusCode int
	Type       string
	Messages   []string
}

func (e *ProviderError) Error() string {
	detail := strings.Join(e.Messages, "; ")
	if detail == "" {
		detail = "request rejected"
	}
	if e.Type != "" {
		return fmt.Sprintf("transcode provider: %s (%s, status %d)", detail, e.Type, e.StatusCode)
	}
	return fmt.Sprintf("transcode provider: %s (status %d)", detail, e.StatusCode)
}

// Temporary reports whether the failure class is worth a later manual retry
// rather than a configuration fix.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
