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
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/srediag/dscore/pkg/component"
	"github.com/srediag/dscore/pkg/native"
)

// ProbeOptions is the options of the probe sub command.
type ProbeOptions struct {
	Output string
	IOStreams

	loader native.Loader
}

type probeReport struct {
	Library string        `json:"library"`
	Methods []probeResult `json:"methods"`
}

type probeResult struct {
	Method      string   `json:"method"`
	Variant     string   `json:"variant"`
	Symbol      string   `json:"symbol,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func NewCmdProbe(streams IOStreams) *cobra.Command {
	o := &ProbeOptions{IOStreams: streams}
	cmd := &cobra.Command{
		Use:   "probe LIBRARY [METHOD...]",
		Short: "Report which lifecycle symbols a library exports",
		Long: `Load LIBRARY and report, for every METHOD, whether it resolves to the
parameterized symbol METHOD_param, the plain symbol METHOD, or nothing. Without
methods the default create, activate and deactivate symbols are probed.`,
		Example: `  # Probe the default lifecycle symbols
  dsctl probe ./libcounter.so

  # Probe custom symbols and print JSON
  dsctl probe ./libcounter.so make setClock -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return o.Run(args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "output format: text or json")
	return cmd
}

// Run loads library, probes methods and writes the report to Out. The library
// is unloaded before returning and an unload failure is part of the result.
func (o *ProbeOptions) Run(library string, methods []string) (err error) {
	if o.Output != "text" && o.Output != "json" {
		return fmt.Errorf("unknown output format %q", o.Output)
	}
	if len(methods) == 0 {
		methods = []string{component.DefaultCreate, component.DefaultActivate, component.DefaultDeactivate}
	}

	var opts []native.Option
	if o.loader != nil {
		opts = append(opts, native.WithLoader(o.loader))
	}
	h, err := native.NewHandle(library, opts...).Load()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, h.Unload()) }()

	report := probeReport{Library: library}
	for _, method := range methods {
		res, err := h.Probe(method)
		if err != nil {
			return err
		}
		report.Methods = append(report.Methods, probeResult{
			Method:      res.Method,
			Variant:     res.Variant.String(),
			Symbol:      res.Symbol,
			Diagnostics: res.Diagnostics,
		})
	}

	if o.Output == "json" {
		out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(o.Out, "%s\n", out)
		return err
	}

	w := tabwriter.NewWriter(o.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tVARIANT\tSYMBOL")
	for _, r := range report.Methods {
		symbol := r.Symbol
		if symbol == "" {
			symbol = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Method, r.Variant, symbol)
	}
	return w.Flush()
}
