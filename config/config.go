// Copyright (c) 2022 The rcproxy Authors
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

package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/apaluca/sockrpc/pkg/logging"
)

// Config is the on-disk shape of a sockrpc server's configuration file.
type Config struct {
	SockPath     string `yaml:"sock_path"`
	AdminAddr    string `yaml:"admin_addr"`
	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level"`
	LogExpireDay int    `yaml:"log_expire_day"`
	Engine       engine `yaml:"engine"`
}

type engine struct {
	NumWorkers           int   `yaml:"num_workers"`
	RegistryCapacity     int   `yaml:"registry_capacity"`
	Backlog              int   `yaml:"backlog"`
	WorkerPollTimeoutMs  int64 `yaml:"worker_poll_timeout_ms"`
	SlowHandlerThreshold int64 `yaml:"slow_handler_threshold_ms"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(fileName string) (*Config, error) {
	file, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	var cfg Config
	if err = yaml.Unmarshal(file, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogPath == "" {
		c.LogPath = "log"
	}
	if c.LogLevel == "" {
		c.LogLevel = logging.LevelInfo
	}
	if c.LogExpireDay == 0 {
		c.LogExpireDay = 7
	}
	if c.Engine.NumWorkers == 0 {
		c.Engine.NumWorkers = 4
	}
	if c.Engine.WorkerPollTimeoutMs == 0 {
		c.Engine.WorkerPollTimeoutMs = 100
	}
	if c.Engine.SlowHandlerThreshold == 0 {
		c.Engine.SlowHandlerThreshold = 200
	}
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if c.SockPath == "" {
		return errors.Errorf("sock_path must be set")
	}
	if c.Engine.NumWorkers <= 0 {
		return errors.Errorf("engine.num_workers must be positive")
	}
	return nil
}
