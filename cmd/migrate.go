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

/*
Package main provides the CLI commands for managing database migrations.
*/

package main

import (
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/nexus"
	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/database"
)

const migrationSchema = "nexus"

func migrateCommands(_ *nexusInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run nexus database migrations",
	}

	cmd.AddCommand(migrationCommand("up", migrate.Up, "Applied"))
	cmd.AddCommand(migrationCommand("down", migrate.Down, "Rolled back"))

	return cmd
}

func migrationCommand(use string, direction migrate.MigrationDirection, verb string) *cobra.Command {
	return &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			migrations := migrate.EmbedFileSystemMigrationSource{
				FileSystem: nexus.SQLFiles,
				Root:       "sql",
			}

			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}

			db, err := database.ConnectDB(cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			migrate.SetSchema(migrationSchema)

			n, err := migrate.Exec(db, "postgres", migrations, direction)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			fmt.Printf("%s %d migrations!\n", verb, n)
		},
	}
}
