package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ngageoint/scale/internal/common"
	commonconfig "github.com/ngageoint/scale/internal/common/config"
	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/scheduler/configuration"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scale",
		SilenceUsage: true,
		Short:        "Scale runs recipes of containerised jobs across a cluster of nodes",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runSchedulerCmd(),
		runMessagingCmd(),
		migrateDbCmd(),
		validateRecipeCmd(),
		diffRecipeCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/scale", userSpecifiedConfigs)

	err := commonconfig.Validate(config)
	if err != nil {
		commonconfig.LogValidationErrors(err)
		return config, err
	}
	return config, logging.Configure(config.Logging)
}
