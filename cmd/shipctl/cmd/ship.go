package cmd

import (
	"strings"

	"shipyard/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var shipCmd = &cobra.Command{
	Use:   "ship",
	Short: "Manage Ships",
}

var shipAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire a Ship for a session, creating one if needed",
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		ttl, _ := cmd.Flags().GetInt("ttl")
		force, _ := cmd.Flags().GetBool("force")
		if session == "" {
			cmd.Println("Error: --session is required")
			return
		}

		client := bayClient(cmd)
		ship, err := client.AcquireShip(session, api.CreateShipRequest{TTLSeconds: ttl, ForceCreate: force})
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		printShip(cmd, *ship)
	},
}

var shipGetCmd = &cobra.Command{
	Use:   "get [ship-id]",
	Short: "Show a Ship's current state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ship, err := bayClient(cmd).GetShip(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		printShip(cmd, *ship)
	},
}

var shipStopCmd = &cobra.Command{
	Use:   "stop [ship-id]",
	Short: "Stop a Ship's container, keeping its data",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := bayClient(cmd).StopShip(args[0]); err != nil {
			printAPIError(cmd, err)
			return
		}
		cmd.Println(colorGreen + "✓ Ship stopped" + colorReset)
	},
}

var shipDeleteCmd = &cobra.Command{
	Use:   "delete [ship-id]",
	Short: "Permanently delete a Ship and its bound sessions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := bayClient(cmd).DeleteShip(args[0]); err != nil {
			printAPIError(cmd, err)
			return
		}
		cmd.Println(colorGreen + "✓ Ship deleted" + colorReset)
	},
}

var shipStartCmd = &cobra.Command{
	Use:   "start [ship-id]",
	Short: "Recover a Stopped Ship on demand",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ship, err := bayClient(cmd).StartShip(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		printShip(cmd, *ship)
	},
}

var shipExtendCmd = &cobra.Command{
	Use:   "extend-ttl [ship-id]",
	Short: "Extend a running Ship's expiry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ttl, _ := cmd.Flags().GetInt("ttl")
		ship, err := bayClient(cmd).ExtendTTL(args[0], ttl)
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		printShip(cmd, *ship)
	},
}

var shipExecCmd = &cobra.Command{
	Use:   "exec [ship-id] [code]",
	Short: "Run code in a Ship on behalf of a session",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		execType, _ := cmd.Flags().GetString("type")
		if session == "" {
			cmd.Println("Error: --session is required")
			return
		}

		result, err := bayClient(cmd).Exec(session, args[0], api.ExecRequest{
			Type:    execType,
			Payload: map[string]any{"code": args[1]},
		})
		if err != nil {
			printAPIError(cmd, err)
			return
		}

		if result.Success {
			cmd.Println(colorGreen + "✓ succeeded" + colorReset)
		} else {
			cmd.Println(colorRed + "✗ failed: " + result.Error + colorReset)
		}
	},
}

func printShip(cmd *cobra.Command, s api.ShipResponse) {
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, s.ID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, s.Status)
	cmd.Printf("%sEndpoint:%s    %s\n", colorDim, colorReset, s.Endpoint)
	cmd.Printf("%sTTL:%s         %ds\n", colorDim, colorReset, s.TTLSeconds)
	if s.ExpiresAt != nil {
		cmd.Printf("%sExpires:%s     %s\n", colorDim, colorReset, s.ExpiresAt.Format("Mon, 02 Jan 2006 15:04:05 MST"))
	}
	cmd.Printf("%sWarm pool:%s   %v\n", colorDim, colorReset, s.WarmPool)
}

func printAPIError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%sError (%d):%s %s\n", colorRed, apiErr.StatusCode, colorReset, strings.TrimSpace(apiErr.Message))
		return
	}
	cmd.Printf("%sError:%s %v\n", colorRed, colorReset, err)
}

func bayClient(cmd *cobra.Command) *BayClient {
	return NewBayClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	shipAcquireCmd.Flags().String("session", "", "Session id to bind the Ship to (required)")
	shipAcquireCmd.Flags().Int("ttl", 0, "TTL in seconds (defaults to server default)")
	shipAcquireCmd.Flags().Bool("force", false, "Skip existing-binding/warm-pool reuse and force a fresh Ship")

	shipExtendCmd.Flags().Int("ttl", 3600, "New TTL in seconds")

	shipExecCmd.Flags().String("session", "", "Session id the exec call is scoped to (required)")
	shipExecCmd.Flags().String("type", "python", "Exec type: python or shell")

	shipCmd.AddCommand(shipAcquireCmd, shipGetCmd, shipStopCmd, shipDeleteCmd, shipStartCmd, shipExtendCmd, shipExecCmd)
	rootCmd.AddCommand(shipCmd)
}
