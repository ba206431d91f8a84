package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes Metrics in Prometheus' text exposition format:
// every counter as aero_live_signaling_events_total{event=...} and every gauge
// as aero_live_signaling_state{name=...}.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		counters := m.Snapshot()
		gauges := m.GaugeSnapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintln(w, "# HELP aero_live_signaling_events_total Internal event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE aero_live_signaling_events_total counter")
		for _, k := range sortedKeys(counters) {
			_, _ = fmt.Fprintf(w, "aero_live_signaling_events_total{event=\"%s\"} %d\n", labelEscaper.Replace(k), counters[k])
		}
		_, _ = fmt.Fprintln(w, "# HELP aero_live_signaling_state Current relay state.")
		_, _ = fmt.Fprintln(w, "# TYPE aero_live_signaling_state gauge")
		for _, k := range sortedKeys(gauges) {
			_, _ = fmt.Fprintf(w, "aero_live_signaling_state{name=\"%s\"} %d\n", labelEscaper.Replace(k), gauges[k])
		}
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
