// -- cmd/root.go --
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/internal/config"
	"github.com/xkilldash9x/pentest-crew/internal/observability"
)

const envPrefix = "CREW"

// application is the state shared by one command tree: the viper instance,
// the loaded configuration and the operator's input stream.
type application struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	input   *bufio.Reader
}

// NewRootCommand builds a fresh command tree. Each call gets its own viper
// instance so flags from one invocation never leak into the next.
func NewRootCommand() *cobra.Command {
	app := &application{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "pentest-crew",
		Short: "A crew of LLM agents that runs a web penetration test phase by phase.",
		Long: `pentest-crew runs recon, vulnerability scanning, exploitation and reporting as
separate group chats. Every shell command is validated by a checker agent and
approved by the operator (or auto-approved with --interaction never) before it runs.

Run without arguments for the interactive phase menu.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runMenu(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "config file (default is ./pentest-crew.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(app),
		newPhasesCmd(app),
		newRunsCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initialize loads .env, the config file and CREW_ environment variables, then
// sets up the global logger.
func (a *application) initialize(cmd *cobra.Command) error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if err := a.readConfig(); err != nil {
		return err
	}
	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		// Initialize a fallback logger so the failure is still reported.
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pentest-crew"})
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	a.input = bufio.NewReader(cmd.InOrStdin())

	observability.InitializeLogger(cfg.LoggerCfg)
	observability.GetLogger().Debug("Starting pentest-crew", zap.String("version", Version))
	return nil
}

func (a *application) readConfig() error {
	config.SetDefaults(a.v)
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("pentest-crew")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}
