package main

import (
	"errors"

	"github.com/diewo77/go-esign/internal/config"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries what every subcommand needs once the configuration is loaded.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:           "esign",
		Short:         "E-signature service for sale orders",
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfgFile, "config", "c", "", "Configuration file (default ./esign.yaml or /etc/esign/esign.yaml)")
	flags.StringP("log-level", "L", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "File to which the log is written")
	flags.Bool("dev", false, "Development mode (console logs, default secrets allowed, cookies without Secure)")
	flags.String("db-driver", "postgres", "Database driver: postgres or sqlite")
	flags.String("db-path", "esign.db", "Database file when using sqlite")
	for key, name := range map[string]string{
		"log.level":       "log-level",
		"log.file":        "log-file",
		"app.dev":         "dev",
		"database.driver": "db-driver",
		"database.path":   "db-path",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(c.serveCmd(), c.migrateCmd(), c.seedCmd(), c.pollCmd())
	return root
}

func (c *cli) load() error {
	c.v.SetConfigName("esign")
	c.v.AddConfigPath(".")
	c.v.AddConfigPath("/etc/esign")
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return logging.Initialize(cfg.Log, cfg.App.Dev)
}
