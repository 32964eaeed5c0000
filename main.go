// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/apaluca/sockrpc/config"
	"github.com/apaluca/sockrpc/pkg/logging"
	"github.com/apaluca/sockrpc/rpcengine"
)

var (
	configPath      = flag.String("p", "conf", "Config file path")
	basicConfigFile = flag.String("c", "sockrpc.yaml", "Basic config filename")
	version         = flag.Bool("v", false, "Show version")
	help            = flag.Bool("h", false, "Show usage info")
)

var (
	CommitSHA string
	Tag       string
	BuildTime string
)

func init() {
	if len(Tag) < 1 {
		Tag = "unknown"
	}
	if len(CommitSHA) < 1 {
		CommitSHA = "unknown"
	}
	if len(BuildTime) < 1 {
		BuildTime = "unknown"
	}
}

const banner string = `
  ____   ___   ____  _  __ ____  ____   ____
 / ___| / _ \ / ___|| |/ /|  _ \|  _ \ / ___|
 \___ \| | | | |    | ' / | |_) | |_) | |
  ___) | |_| | |___ | . \ |  _ <|  __/| |___
 |____/ \___/ \____||_|\_\|_| \_\_|    \____|

`

func parseCli() {
	flag.Parse()
	if *version {
		fmt.Printf("version: %s\ncommit: %s\ntime: %s\n", Tag, CommitSHA, BuildTime)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

func main() {
	parseCli()

	confFile := path.Join(*configPath, *basicConfigFile)
	cfg, err := config.LoadConfig(confFile)
	if err != nil {
		logging.Errorf("parse config file err: %v", err)
		return
	}

	if err = logging.InitializeLogger(
		logging.WithPath(cfg.LogPath),
		logging.WithExpireDay(cfg.LogExpireDay),
		logging.WithLogLevel(cfg.LogLevel),
	); err != nil {
		logging.Errorf("failed to initialize logger, err: %s", err)
		return
	}

	fmt.Print(banner)
	fmt.Printf("sockrpc version: %s\n", Tag)
	fmt.Printf("sockrpc started with socket: %s, pid: %d\n", cfg.SockPath, syscall.Getpid())
	logging.Infof("sockrpc started with socket: %s, pid: %d, version: %s", cfg.SockPath, syscall.Getpid(), Tag)

	s, err := rpcengine.NewServer(cfg.SockPath,
		rpcengine.WithNumWorkers(cfg.Engine.NumWorkers),
		rpcengine.WithRegistryCapacity(cfg.Engine.RegistryCapacity),
		rpcengine.WithBacklog(cfg.Engine.Backlog),
		rpcengine.WithWorkerPollTimeout(time.Duration(cfg.Engine.WorkerPollTimeoutMs)*time.Millisecond),
		rpcengine.WithSlowHandlerThreshold(time.Duration(cfg.Engine.SlowHandlerThreshold)*time.Millisecond),
		rpcengine.WithAdminAddr(cfg.AdminAddr),
	)
	if err != nil {
		logging.Errorf("failed to construct server: %s", err)
		return
	}

	if err := config.WatchReload(confFile, func(reloaded *config.Config) {
		logging.SetLevel(reloaded.LogLevel)
	}); err != nil {
		logging.Warnf("config hot-reload disabled: %s", err)
	}

	if err := s.Start(); err != nil {
		logging.Errorf("sockrpc failed to start: %s", err)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := s.Close(); err != nil {
		logging.Errorf("sockrpc shutdown error: %s", err)
	}
	logging.Infof("sockrpc shutdown, pid: %d, socket: %s", syscall.Getpid(), cfg.SockPath)
}
