package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var shipLogsCmd = &cobra.Command{
	Use:   "logs [ship-id]",
	Short: "Fetch a Ship container's logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		shipID := args[0]
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			os.Exit(0)
		}()

		client := bayClient(cmd)
		for {
			logs, err := client.Logs(shipID, tail)
			if err != nil {
				printAPIError(cmd, err)
				if !follow {
					return
				}
				time.Sleep(2 * time.Second)
				continue
			}
			cmd.Print(logs)
			if !follow {
				return
			}
			time.Sleep(2 * time.Second)
		}
	},
}

func init() {
	shipLogsCmd.Flags().Int("tail", 200, "Number of trailing log lines to fetch")
	shipLogsCmd.Flags().BoolP("follow", "f", false, "Keep polling for new log output")
	shipCmd.AddCommand(shipLogsCmd)
}
