/*
Copyright PD Control Plane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package app wires the pdctl root command: flag parsing, klog
// initialization, and the server lifecycle.
package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

var (
	port             string
	defaultBlockSize int
)

var rootCmd = &cobra.Command{
	Use:   "pdctl",
	Short: "Control-plane metadata server for a disaggregated LLM serving cluster",
	Long: `pdctl tracks prefill and decode host topology, KV-cache block
residency, and schedules prefill/decode placements for a disaggregated
LLM serving cluster, over a JSON-over-HTTP API.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			klog.V(2).Infof("flag: %s=%s", f.Name, f.Value.String())
		})
		runServer()
	},
}

func init() {
	klog.InitFlags(nil)
	rootCmd.Flags().AddGoFlagSet(flag.CommandLine)
	rootCmd.Flags().StringVar(&port, "port", "6666", "TCP port to bind the control-plane HTTP server to")
	rootCmd.Flags().IntVar(&defaultBlockSize, "default-block-size", 16, "Block size used for registrations that omit one")
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		klog.Fatalf("pdctl: %v", err)
	}
}

func runServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		klog.Info("received termination signal, shutting down")
		cancel()
	}()

	NewServer(port, defaultBlockSize).Run(ctx)
}
