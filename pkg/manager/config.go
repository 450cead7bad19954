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

package manager

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultWorkers              = 4
	defaultLoadRetryInterval    = 200 * time.Millisecond
	defaultLoadRetryMaxInterval = 5 * time.Second
	defaultAuditCapacity        = 1024
)

// Config tunes a Manager.
type Config struct {
	// Workers is the size of the pool that starts components concurrently.
	Workers int `mapstructure:"workers" json:"workers"`

	// LoadRetries is how many times a failed library load is retried. Zero
	// disables retries. Only load failures are retried, never hook errors.
	LoadRetries uint64 `mapstructure:"load_retries" json:"load_retries"`

	// LoadRetryInterval is the first delay between load attempts; it doubles up
	// to LoadRetryMaxInterval.
	LoadRetryInterval    time.Duration `mapstructure:"load_retry_interval" json:"load_retry_interval"`
	LoadRetryMaxInterval time.Duration `mapstructure:"load_retry_max_interval" json:"load_retry_max_interval"`

	// AuditCapacity is the size of the lifecycle event ring.
	AuditCapacity uint64 `mapstructure:"audit_capacity" json:"audit_capacity"`

	// MaxRSSBytes fails the liveness check once the process resident set grows
	// past it. Zero means unlimited.
	MaxRSSBytes uint64 `mapstructure:"max_rss_bytes" json:"max_rss_bytes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:              defaultWorkers,
		LoadRetryInterval:    defaultLoadRetryInterval,
		LoadRetryMaxInterval: defaultLoadRetryMaxInterval,
		AuditCapacity:        defaultAuditCapacity,
	}
}

// VerifyConfig checks cfg for values the manager cannot run with.
func VerifyConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.AuditCapacity == 0 {
		return errors.New("audit_capacity must be positive")
	}
	if cfg.LoadRetries > 0 {
		if cfg.LoadRetryInterval <= 0 {
			return fmt.Errorf("load_retry_interval must be positive when retries are enabled, got %s", cfg.LoadRetryInterval)
		}
		if cfg.LoadRetryMaxInterval < cfg.LoadRetryInterval {
			return fmt.Errorf("load_retry_max_interval %s is below load_retry_interval %s",
				cfg.LoadRetryMaxInterval, cfg.LoadRetryInterval)
		}
	}
	return nil
}
