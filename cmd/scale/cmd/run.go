package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngageoint/scale/internal/scheduler"
	"github.com/ngageoint/scale/internal/worker"
)

func runSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-scheduler",
		Short: "Runs the scheduler",
		RunE:  runScheduler,
	}
	return cmd
}

func runScheduler(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return scheduler.Run(config)
}

func runMessagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-messaging",
		Short: "Runs a worker executing command messages",
		RunE:  runMessaging,
	}
	return cmd
}

func runMessaging(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return worker.Run(config)
}
