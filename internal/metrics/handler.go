package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the admin metrics endpoint.
type Summary struct {
	HTTP          httpSummary        `json:"http"`
	Admin         httpSummary        `json:"admin"`
	Billing       billingInfo        `json:"billing"`
	Subscriptions map[string]float64 `json:"subscriptionTransitions"`
	Webhooks      webhookInfo        `json:"webhooks"`
	LimitDenials  map[string]float64 `json:"limitDenials"`
	Reconciler    reconcilerInfo     `json:"reconciler"`
	RateLimit     rateLimitInfo      `json:"rateLimit"`
	Auth          authInfo           `json:"auth"`
	DB            dbInfo             `json:"db"`
	Server        serverInfo         `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type billingInfo struct {
	Calls  float64 `json:"calls"`
	Errors float64 `json:"errors"`
}

type webhookInfo struct {
	Events float64 `json:"events"`
	Errors float64 `json:"errors"`
}

type reconcilerInfo struct {
	QueueSize float64 `json:"queueSize"`
	Retries   float64 `json:"retries"`
	Failures  float64 `json:"failures"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
}

// Handler serves a JSON summary of the live metrics.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	start := gaugeValue(fam["planboard_server_start_time_seconds"])
	return &Summary{
		HTTP:  httpKind(fam, "api"),
		Admin: httpKind(fam, "admin"),
		Billing: billingInfo{
			Calls:  sumCounter(fam["planboard_billing_provider_calls_total"], "", ""),
			Errors: sumCounter(fam["planboard_billing_provider_calls_total"], "outcome", "error"),
		},
		Subscriptions: byLabel(fam["planboard_subscription_transitions_total"], "transition"),
		Webhooks: webhookInfo{
			Events: sumCounter(fam["planboard_webhook_events_total"], "", ""),
			Errors: sumCounter(fam["planboard_webhook_events_total"], "outcome", "error"),
		},
		LimitDenials: byLabel(fam["planboard_plan_limit_denials_total"], "feature"),
		Reconciler: reconcilerInfo{
			QueueSize: gaugeValue(fam["planboard_reconciler_queue_size"]),
			Retries:   sumCounter(fam["planboard_reconciler_retries_total"], "", ""),
			Failures:  sumCounter(fam["planboard_reconciler_retries_total"], "outcome", "error"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["planboard_ratelimit_rejections_total"], "", ""),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["planboard_auth_failures_total"], "", ""),
			Successes: sumCounter(fam["planboard_auth_successes_total"], "", ""),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["planboard_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["planboard_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["planboard_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["planboard_db_pool_max_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

func httpKind(fam map[string]*dto.MetricFamily, kind string) httpSummary {
	requests := fam["planboard_http_requests_total"]
	durations := fam["planboard_http_request_duration_seconds"]
	return httpSummary{
		TotalRequests: sumCounter(requests, "kind", kind),
		ErrorRate:     errorRate(requests, "kind", kind),
		P50Latency:    histogramPercentile(durations, 0.50, "kind", kind),
		P95Latency:    histogramPercentile(durations, 0.95, "kind", kind),
		P99Latency:    histogramPercentile(durations, 0.99, "kind", kind),
	}
}

// matches reports whether m carries the label; an empty name matches all.
func matches(m *dto.Metric, name, value string) bool {
	if name == "" {
		return true
	}
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounter(f *dto.MetricFamily, name, value string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if matches(m, name, value) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// byLabel sums a counter family grouped by one label.
func byLabel(f *dto.MetricFamily, name string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			out[labelValue(m, name)] += m.GetCounter().GetValue()
		}
	}
	return out
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 || ms[0].GetGauge() == nil {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

// errorRate is the share of requests answered with a 4xx or 5xx status.
func errorRate(f *dto.MetricFamily, name, value string) float64 {
	if f == nil {
		return 0
	}
	var total, errs float64
	for _, m := range f.GetMetric() {
		if !matches(m, name, value) || m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		if code := labelValue(m, "status_code"); len(code) > 0 && code[0] >= '4' {
			errs += v
		}
	}
	if total == 0 {
		return 0
	}
	return errs / total
}

// histogramPercentile estimates quantile q from the aggregated buckets of
// the matching histograms using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64, name, value string) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)
	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil || !matches(m, name, value) {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)
	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			inBucket := b.cumulativeCount - prevCount
			if inBucket == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(inBucket)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
