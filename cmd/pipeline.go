/*
Copyright 2025 Vidigest Authors.

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

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// pipelineCommands defines the "pipeline" command that runs the coordinator.
// By default one pass is made over every configured channel; with --interval
// the pass repeats on a schedule until interrupted. Interruption stops new
// items; the in-flight item finishes and the ledger keeps the rest.
func pipelineCommands(v *vidigestInstance) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "run the summarization pipeline over the configured channels",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runPass := func() {
				start := time.Now()
				if err := v.vidigest.ProcessDueChannels(ctx); err != nil {
					logrus.Errorf("pipeline pass failed: %v", err)
					return
				}
				logrus.Infof("pipeline pass finished in %v", time.Since(start))
			}

			runPass()
			if interval <= 0 {
				return
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					log.Println("pipeline stopped")
					return
				case <-ticker.C:
					runPass()
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "re-run the pipeline on this interval (one pass if unset)")
	return cmd
}
