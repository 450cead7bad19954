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

package dsctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/srediag/dscore/pkg/component"
	"github.com/srediag/dscore/pkg/manager"
)

const (
	envPrefix     = "DSCORE"
	defaultModule = "default"
	defaultListen = "127.0.0.1:9464"
)

// Config is the file read by dsctl run.
type Config struct {
	// Module names the owning module of every component.
	Module string `mapstructure:"module"`
	// Listen is the address serving /metrics, /live and /ready. Empty disables it.
	Listen string `mapstructure:"listen"`
	// MaxGoroutines fails liveness above this count. Zero disables the check.
	MaxGoroutines int `mapstructure:"max_goroutines"`
	// Watch reloads components whose library file is replaced on disk.
	Watch bool `mapstructure:"watch"`
	// WatchDebounce is how long library events must settle before a reload.
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`

	Manager    manager.Config         `mapstructure:"manager"`
	Components []component.Descriptor `mapstructure:"components"`
}

// LoadConfig reads path, any format viper understands, over the defaults. Every
// scalar setting may be overridden from the environment, for example
// DSCORE_MANAGER_LOAD_RETRIES. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	d := manager.DefaultConfig()
	v.SetDefault("module", defaultModule)
	v.SetDefault("listen", defaultListen)
	v.SetDefault("max_goroutines", 0)
	v.SetDefault("watch", false)
	v.SetDefault("watch_debounce", 1500*time.Millisecond)
	v.SetDefault("manager.workers", d.Workers)
	v.SetDefault("manager.load_retries", d.LoadRetries)
	v.SetDefault("manager.load_retry_interval", d.LoadRetryInterval)
	v.SetDefault("manager.load_retry_max_interval", d.LoadRetryMaxInterval)
	v.SetDefault("manager.audit_capacity", d.AuditCapacity)
	v.SetDefault("manager.max_rss_bytes", d.MaxRSSBytes)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := manager.VerifyConfig(&cfg.Manager); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}
