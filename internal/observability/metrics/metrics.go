package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics for HTTP requests and the media
// pipeline. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for in-flight transcoding work.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	pipelineEvents   map[string]uint64
	componentHealth  map[string]float64
	componentStatus  map[string]string
	assetTransitions map[string]uint64
	activeProcessing atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		pipelineEvents:   make(map[string]uint64),
		componentHealth:  make(map[string]float64),
		componentStatus:  make(map[string]string),
		assetTransitions: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across helper functions.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObservePipelineEvent counts a pipeline step by name, e.g. "slot_issued",
// "submission", "submission_failure", "refresh", "webhook".
func (r *Recorder) ObservePipelineEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.pipelineEvents[name]++
	r.mu.Unlock()
}

// ObserveAssetTransition counts an asset entering a lifecycle state.
func (r *Recorder) ObserveAssetTransition(status string) {
	name := normalizeName(status)
	r.mu.Lock()
	r.assetTransitions[name]++
	r.mu.Unlock()
}

// ProcessingStarted increments the in-flight transcoding gauge.
func (r *Recorder) ProcessingStarted() {
	r.activeProcessing.Add(1)
}

// ProcessingFinished decrements the in-flight transcoding gauge, guarding
// against negative counts when concurrent updates race.
func (r *Recorder) ProcessingFinished() {
	for {
		current := r.activeProcessing.Load()
		if current <= 0 {
			return
		}
		if r.activeProcessing.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveProcessing exposes the current gauge of assets being transcoded.
func (r *Recorder) ActiveProcessing() int64 {
	return r.activeProcessing.Load()
}

// SetComponentHealth maps status strings to numeric health values and stores
// both representations for export.
func (r *Recorder) SetComponentHealth(component, status string) {
	name := normalizeName(component)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.componentHealth[name] = value
	r.componentStatus[name] = normalizedStatus
	r.mu.Unlock()
}

// PipelineCounts returns a copy of the pipeline event counters for tests and
// reporting.
func (r *Recorder) PipelineCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.pipelineEvents))
	for k, v := range r.pipelineEvents {
		counts[k] = v
	}
	return counts
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.pipelineEvents = make(map[string]uint64)
	r.componentHealth = make(map[string]float64)
	r.componentStatus = make(map[string]string)
	r.assetTransitions = make(map[string]uint64)
	r.activeProcessing.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	pipelineEvents := sortedKeys(r.pipelineEvents)
	components := sortedFloatKeys(r.componentHealth)
	transitions := sortedKeys(r.assetTransitions)

	fmt.Fprintln(w, "# HELP chapelcast_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE chapelcast_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "chapelcast_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP chapelcast_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE chapelcast_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "chapelcast_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP chapelcast_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE chapelcast_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "chapelcast_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP chapelcast_pipeline_events_total Media pipeline events by type")
	fmt.Fprintln(w, "# TYPE chapelcast_pipeline_events_total counter")
	for _, event := range pipelineEvents {
		fmt.Fprintf(w, "chapelcast_pipeline_events_total{event=\"%s\"} %d\n", event, r.pipelineEvents[event])
	}

	fmt.Fprintln(w, "# HELP chapelcast_asset_transitions_total Asset lifecycle transitions by target status")
	fmt.Fprintln(w, "# TYPE chapelcast_asset_transitions_total counter")
	for _, status := range transitions {
		fmt.Fprintf(w, "chapelcast_asset_transitions_total{status=\"%s\"} %d\n", status, r.assetTransitions[status])
	}

	fmt.Fprintln(w, "# HELP chapelcast_component_health Health reported by service dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE chapelcast_component_health gauge")
	for _, component := range components {
		value := r.componentHealth[component]
		status := r.componentStatus[component]
		fmt.Fprintf(w, "chapelcast_component_health{component=\"%s\",status=\"%s\"} %f\n", component, status, value)
	}

	fmt.Fprintln(w, "# HELP chapelcast_assets_processing Current number of assets being transcoded")
	fmt.Fprintln(w, "# TYPE chapelcast_assets_processing gauge")
	fmt.Fprintf(w, "chapelcast_assets_processing %d\n", r.activeProcessing.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObservePipelineEvent records a pipeline event on the default recorder.
func ObservePipelineEvent(event string) {
	defaultRecorder.ObservePipelineEvent(event)
}

// SetComponentHealth updates component health on the default recorder.
func SetComponentHealth(component, status string) {
	defaultRecorder.SetComponentHealth(component, status)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
