/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/jerry-enebeli/nexus"
	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/database"
	"github.com/jerry-enebeli/nexus/internal/notification"
)

// Nexus represents the CLI application, encapsulating the root Cobra command.
type Nexus struct {
	cmd *cobra.Command
}

// nexusInstance holds the runtime instance and its configuration, shared by
// every subcommand.
type nexusInstance struct {
	nexus *nexus.Nexus
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the Nexus instance before any
// command runs. Migrations only need the configuration.
func preRun(app *nexusInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if (cmd.Parent() != nil && cmd.Parent().Name() == "migrate") || cmd.Name() == "config" {
			return nil
		}

		newNexus, err := setupNexus(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.nexus = newNexus

		return nil
	}
}

func setupNexus(cfg *config.Configuration) (*nexus.Nexus, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newNexus, err := nexus.NewNexus(db)
	if err != nil {
		return nil, fmt.Errorf("error creating nexus: %v", err)
	}
	return newNexus, nil
}

func NewCLI() *Nexus {
	var configFile string
	n := &nexusInstance{}

	var rootCmd = &cobra.Command{
		Use:   "nexus",
		Short: "Checkout and asynchronous invoicing",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./nexus.json", "Configuration file for nexus")
	rootCmd.PersistentPreRunE = preRun(n, &configFile)

	rootCmd.AddCommand(serverCommands(n))
	rootCmd.AddCommand(workerCommands(n))
	rootCmd.AddCommand(migrateCommands(n))
	rootCmd.AddCommand(configCommands())

	return &Nexus{cmd: rootCmd}
}

func (w Nexus) executeCLI() {
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
