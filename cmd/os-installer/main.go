package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// Command-line flags that can override config file settings
var (
	configFile string = ""
	logLevel   string = ""
)

func main() {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	config.SetGlobal(globalConfig)

	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	rootCmd := createRootCommand()

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			globalConfig.Logging.Level = logLevel
			config.SetGlobal(globalConfig)
			logger.SetLogLevel(logLevel)
		}
	}

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	log.Debugf("Config: mount_root=%s, device_wait=%dx%v",
		globalConfig.MountRoot, globalConfig.DeviceWait.Attempts, globalConfig.DeviceWaitDelay())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "os-installer",
		Short: "Interactive bare-metal Linux installer",
		Long: `os-installer provisions a Linux system onto local disks: device
selection, partitioning and formatting behind explicit confirmations, base
system bootstrap, desktop and package installation, system configuration,
and firmware-aware bootloader setup.

Use 'os-installer install' to start an interactive installation.
Use 'os-installer <command> --help' for more information about a command.`,
		// Runtime errors (including operator aborts) are not usage errors;
		// they must exit non-zero without a help dump.
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createVersionCommand())

	return rootCmd
}
