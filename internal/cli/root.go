// Package cli implements the neuroctl command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neuro-ai/internal/config"
	"neuro-ai/internal/logger"
)

// app is the state shared by every subcommand, filled in before each run.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	outputFormat string
	verbose      bool
}

func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "neuroctl",
		Short: "Neuro AI MRI intake and engagement tool",
		Long: `neuroctl runs the MRI intake flow against the prediction service and
reads or writes the engagement data (visitors, feedback, testimonials).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&a.outputFormat, "output", "o", "human", "Output format (human, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(
		newDiagnoseCmd(a),
		newVisitorsCmd(a),
		newFeedbackCmd(a),
		newAnalyticsCmd(a),
		newTestimonialsCmd(a),
		newVersionCmd(version),
	)
	return rootCmd
}

func (a *app) init() error {
	switch a.outputFormat {
	case "human", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want human, json or yaml)", a.outputFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = config.DefaultClientID("neuroctl")
	}
	a.cfg = cfg

	level := "error"
	if a.verbose {
		level = "debug"
	}
	a.logger, err = logger.New(level, "console", "neuroctl")
	return err
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neuroctl version %s\n", version)
		},
	}
}
