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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vidigest/vidigest"
	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/database"
	"github.com/vidigest/vidigest/internal/notification"
)

// Vidigest represents the CLI application, encapsulating the root Cobra command.
type Vidigest struct {
	cmd *cobra.Command
}

// vidigestInstance holds the pipeline service and its configuration so
// subcommands share one wired instance.
type vidigestInstance struct {
	vidigest *vidigest.Vidigest
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the pipeline service before
// running any command.
func preRun(app *vidigestInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("vidigest.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newVidigest, err := setupVidigest(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.vidigest = newVidigest
		app.cnf = cnf

		return nil
	}
}

// setupVidigest creates and initializes the pipeline service on top of the
// configured data source.
func setupVidigest(cfg *config.Configuration) (*vidigest.Vidigest, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newVidigest, err := vidigest.NewVidigest(db)
	if err != nil {
		return nil, fmt.Errorf("error creating vidigest: %v", err)
	}
	return newVidigest, nil
}

// NewCLI creates the command-line interface for the pipeline.
func NewCLI() *Vidigest {
	var configFile string
	v := &vidigestInstance{}

	var rootCmd = &cobra.Command{
		Use:   "vidigest",
		Short: "Video caption summarization pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./vidigest.json", "Configuration file for the pipeline")

	rootCmd.PersistentPreRunE = preRun(v)

	rootCmd.AddCommand(pipelineCommands(v))
	rootCmd.AddCommand(workerCommands(v))

	return &Vidigest{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Vidigest) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
