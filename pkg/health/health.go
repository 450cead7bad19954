/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package health serves liveness and readiness endpoints for a component host.
package health

import (
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// Namespace prefixes the check status gauges.
const Namespace = "dscore"

// ReadinessChecker reports why the host is not ready, nil when it is.
type ReadinessChecker interface {
	Ready() error
}

// Options tunes the checks registered by NewHandler.
type Options struct {
	// MaxRSSBytes fails liveness above this resident set size. Zero disables the check.
	MaxRSSBytes uint64
	// MaxGoroutines fails liveness above this goroutine count. Zero disables the check.
	MaxGoroutines int
	// Registerer exports every check as a gauge when set.
	Registerer prometheus.Registerer
}

// NewHandler returns a handler serving /live and /ready. Readiness fails while
// ready reports an error.
func NewHandler(ready ReadinessChecker, opts Options) healthcheck.Handler {
	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, Namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	if opts.MaxRSSBytes > 0 {
		h.AddLivenessCheck("rss", RSSCheck(opts.MaxRSSBytes))
	}
	if opts.MaxGoroutines > 0 {
		h.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	}
	if ready != nil {
		h.AddReadinessCheck("components", ready.Ready)
	}
	return h
}

// RSSCheck fails when the resident set of this process exceeds limit bytes.
func RSSCheck(limit uint64) healthcheck.Check {
	pid := int32(os.Getpid())
	return func() error {
		p, err := process.NewProcess(pid)
		if err != nil {
			return fmt.Errorf("inspect process %d: %w", pid, err)
		}
		mem, err := p.MemoryInfo()
		if err != nil {
			return fmt.Errorf("memory info of %d: %w", pid, err)
		}
		if mem.RSS > limit {
			return fmt.Errorf("resident set %d bytes exceeds %d", mem.RSS, limit)
		}
		return nil
	}
}
