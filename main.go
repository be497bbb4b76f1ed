package main

import (
	"fmt"
	"os"

	"proxy-bot/bot"
	"proxy-bot/config"
	"proxy-bot/handlers"
	"proxy-bot/model"
	"proxy-bot/utils"
	"proxy-bot/utils/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbosity  int
	logger     *zap.Logger
	cfg        *model.Config
)

var rootCmd = &cobra.Command{
	Use:   "proxy-bot",
	Short: "Relays chat messages under the identities of system members",
	Long: `proxy-bot watches guild messages and re-posts those written with a
member's proxy tags, or matched by autoproxy, through a channel webhook
under that member's name and avatar.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = utils.NewLogger(verbosity)
		if err != nil {
			return err
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.Verbosity = verbosity
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		logger.Info("Database is up to date", zap.String("path", cfg.DatabasePath))
		return db.Close()
	},
}

func run(cmd *cobra.Command, args []string) error {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	b, err := bot.New(cfg, database.NewRepository(db), logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("error creating bot: %w", err)
	}
	handlers.Register(b)

	defer b.Close()
	return b.Run()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
