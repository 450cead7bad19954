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

// Package dsctl implements the dsctl command line.
package dsctl

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/srediag/dscore/internal/logging"
)

// IOStreams are the standard streams of a command.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// NewDefaultDSCtlCommand creates the dsctl command bound to the process streams.
func NewDefaultDSCtlCommand() *cobra.Command {
	return NewDSCtlCommand(IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr})
}

func NewDSCtlCommand(streams IOStreams) *cobra.Command {
	cmds := &cobra.Command{
		Use:   "dsctl",
		Short: "dsctl runs and inspects components shipped as native libraries",
		Long: `dsctl runs and inspects components shipped as native libraries.

Components are declared in a configuration file. Each names the shared library
that implements it, its lifecycle symbols, its default properties, the services
it provides and the services it binds to.`,
		SilenceUsage: true,
		Run:          runHelp,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
	}
	cmds.SetIn(streams.In)
	cmds.SetOut(streams.Out)
	cmds.SetErr(streams.ErrOut)

	flags := cmds.PersistentFlags()
	flags.String("log-level", "", "log level: debug, info, warn, error or off (default $DSCORE_LOG_LEVEL, else warn)")
	flags.Bool("debug", false, "use the development log encoder")

	cmds.AddCommand(
		NewCmdRun(streams),
		NewCmdProbe(streams),
	)
	return cmds
}

func runHelp(cmd *cobra.Command, _ []string) {
	_ = cmd.Help()
}

// setupLogging rebuilds the process logger when a logging flag was given.
func setupLogging(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if !flags.Changed("log-level") && !flags.Changed("debug") {
		return nil
	}
	text, _ := flags.GetString("log-level")
	if text == "" {
		text = os.Getenv("DSCORE_LOG_LEVEL")
	}
	level := zapcore.WarnLevel
	if text != "" {
		l, ok := logging.ParseLevel(text)
		if !ok {
			return fmt.Errorf("unknown log level %q", text)
		}
		level = l
	}
	debug, _ := flags.GetBool("debug")
	logging.SetLogger(logging.New(level, debug))
	return nil
}
