package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shipctl",
	Short: "shipctl is a command line tool for interacting with the Bay control plane",
	Long: `shipctl is the command-line interface for Bay, the control plane that
provisions and manages sandboxed Ships for running agent code.

Common workflows:

  Acquire a Ship for a session:
    shipctl ship acquire --session my-session

  Run code in a Ship:
    shipctl ship exec --session my-session <ship-id> "print('hello')"

  Inspect a Ship:
    shipctl ship get <ship-id>

  Stop or delete a Ship:
    shipctl ship stop <ship-id>
    shipctl ship delete <ship-id>

  Stream a Ship's container logs:
    shipctl ship logs <ship-id> --follow

  Look at a session's execution history:
    shipctl session history <session-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    BAY_URL      Bay API endpoint (default: http://localhost:8080)
    BAY_TOKEN    Bearer token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".shipctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BAY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shipctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Bay API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
