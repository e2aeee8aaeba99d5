/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"synthsite/db"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Usage:   "SQLite cache database, defaults to cache.path",
		EnvVars: []string{"SYNTHSITE_DATABASE"},
	}
}

// databasePath prefers the flag over the configured cache path
func databasePath(ctx *cli.Context) (string, error) {
	if database := ctx.String("database"); database != "" {
		return database, nil
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Cache.Path, nil
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs the cache database migrations. Will create the database if it does not exist.`,
		Flags:       []cli.Flag{databaseFlag()},
		Action: func(ctx *cli.Context) error {
			database, err := databasePath(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Database configured: ", database)
			return db.Migrate(database)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last cache database migration`,
		Flags:       []cli.Flag{databaseFlag()},
		Action: func(ctx *cli.Context) error {
			database, err := databasePath(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Database configured: ", database)
			return db.Rollback(database)
		},
	}
}
