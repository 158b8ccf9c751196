// Copyright 2025 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/thediveo/fdpass/uds"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	var fd int
	var withPidfd bool

	flagSet := pflag.NewFlagSet("fdecho", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.IntVar(&fd, "fd", 3, "number of the file descriptor of the connected unix domain socket")
	flagSet.BoolVar(&withPidfd, "pidfd", false, "append a PID fd referencing this process to each reply")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("fdpass/cmd/fdecho started",
		slog.Int("pid", os.Getpid()),
		slog.Int("fd", fd))
	defer log.Info("fdpass/cmd/fdecho terminated",
		slog.Int("pid", os.Getpid()))

	dupont, err := uds.NewUnixConn(fd, "dupont")
	if err != nil {
		return fmt.Errorf("invalid fd %d: %w", fd, err)
	}
	defer func() { _ = dupont.Close() }()
	return echo(dupont, withPidfd, log)
}
