// Copyright 2015 The etcd Authors
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

package coalescer

import "github.com/prometheus/client_golang/prometheus"

var (
	flushBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coalescer",
		Subsystem: "buffer",
		Name:      "flush_bytes",
		Help:      "Size in bytes of each batch handed to the backend.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	})

	flushDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coalescer",
		Subsystem: "buffer",
		Name:      "flush_duration_seconds",
		Help:      "Time spent copying the batch region and handing it to the backend.",
		Buckets:   prometheus.DefBuckets,
	})

	backendFullTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coalescer",
		Subsystem: "buffer",
		Name:      "backend_full_total",
		Help:      "Number of times check_size observed insufficient remaining backend space.",
	})

	sleepOvershootTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coalescer",
		Subsystem: "timer",
		Name:      "sleep_overshoot_total",
		Help:      "Number of timer-thread sleep samples that overshot 1.5x the configured timeout.",
	})
)

func init() {
	prometheus.MustRegister(flushBytes, flushDurationSeconds, backendFullTotal, sleepOvershootTotal)
}
