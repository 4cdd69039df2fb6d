// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a client's Metrics to Prometheus
type Collector struct {
	metrics *Metrics

	counters      []counterDesc
	active        *prometheus.Desc
	subscriptions *prometheus.Desc
	latency       *prometheus.Desc
	uptime        *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(MetricsSnapshot) int64
}

// NewCollector creates a collector reading m. Metric names are prefixed with
// namespace when it is not empty.
func NewCollector(m *Metrics, namespace string) *Collector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, "bacnet", n)
	}
	counter := func(n, help string, value func(MetricsSnapshot) int64) counterDesc {
		return counterDesc{desc: prometheus.NewDesc(name(n), help, nil, nil), value: value}
	}

	return &Collector{
		metrics: m,
		counters: []counterDesc{
			counter("requests_sent_total", "Requests sent.", func(s MetricsSnapshot) int64 { return s.RequestsSent }),
			counter("requests_succeeded_total", "Requests acknowledged.", func(s MetricsSnapshot) int64 { return s.RequestsSucceeded }),
			counter("requests_failed_total", "Requests answered with an error, reject or abort, or not sent.", func(s MetricsSnapshot) int64 { return s.RequestsFailed }),
			counter("requests_timed_out_total", "Confirmed requests without a reply.", func(s MetricsSnapshot) int64 { return s.RequestsTimedOut }),
			counter("responses_received_total", "Application-layer messages received.", func(s MetricsSnapshot) int64 { return s.ResponsesReceived }),
			counter("errors_received_total", "Error PDUs received.", func(s MetricsSnapshot) int64 { return s.ErrorsReceived }),
			counter("rejects_received_total", "Reject PDUs received.", func(s MetricsSnapshot) int64 { return s.RejectsReceived }),
			counter("aborts_received_total", "Abort PDUs received.", func(s MetricsSnapshot) int64 { return s.AbortsReceived }),
			counter("whois_sent_total", "Who-Is requests sent.", func(s MetricsSnapshot) int64 { return s.WhoIsSent }),
			counter("whois_answered_total", "Who-Is requests answered with I-Am.", func(s MetricsSnapshot) int64 { return s.WhoIsAnswered }),
			counter("iam_received_total", "I-Am announcements received.", func(s MetricsSnapshot) int64 { return s.IAmReceived }),
			counter("devices_discovered_total", "Distinct devices discovered.", func(s MetricsSnapshot) int64 { return s.DevicesDiscovered }),
			counter("cov_subscriptions_total", "COV subscriptions accepted by devices.", func(s MetricsSnapshot) int64 { return s.COVSubscriptions }),
			counter("cov_notifications_total", "COV notifications received.", func(s MetricsSnapshot) int64 { return s.COVNotifications }),
			counter("frames_received_total", "Datagrams received.", func(s MetricsSnapshot) int64 { return s.FramesReceived }),
			counter("frames_dropped_total", "Datagrams dropped as malformed.", func(s MetricsSnapshot) int64 { return s.FramesDropped }),
			counter("frames_ignored_total", "Valid datagrams the client does not handle.", func(s MetricsSnapshot) int64 { return s.FramesIgnored }),
			counter("bytes_sent_total", "Bytes sent.", func(s MetricsSnapshot) int64 { return s.BytesSent }),
			counter("bytes_received_total", "Bytes received.", func(s MetricsSnapshot) int64 { return s.BytesReceived }),
		},
		active:        prometheus.NewDesc(name("active_requests"), "Confirmed requests awaiting a reply.", nil, nil),
		subscriptions: prometheus.NewDesc(name("active_subscriptions"), "COV subscriptions held by the client.", nil, nil),
		latency:       prometheus.NewDesc(name("request_duration_seconds"), "Confirmed request round trip time.", nil, nil),
		uptime:        prometheus.NewDesc(name("uptime_seconds"), "Seconds since the client was created.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.active
	ch <- c.subscriptions
	ch <- c.latency
	ch <- c.uptime
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(s)))
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.ActiveRequests))
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(s.ActiveSubscriptions))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds())

	buckets := make(map[float64]uint64, len(LatencyBuckets))
	var cumulative uint64
	for i, bound := range LatencyBuckets {
		cumulative += uint64(s.LatencyStats.Buckets[i])
		buckets[bound.Seconds()] = cumulative
	}
	ch <- prometheus.MustNewConstHistogram(c.latency,
		uint64(s.LatencyStats.Count), s.LatencyStats.Sum.Seconds(), buckets)
}
