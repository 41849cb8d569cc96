package cmd

import (
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions and their execution history",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Run: func(cmd *cobra.Command, args []string) {
		sessions, err := bayClient(cmd).ListSessions()
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		for _, s := range sessions {
			cmd.Printf("%s%s%s  ship=%s  expires=%s\n", colorBold, s.SessionID, colorReset, s.ShipID,
				s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get [session-id]",
	Short: "Show a session's binding",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := bayClient(cmd).GetSession(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		cmd.Printf("%sSession:%s      %s\n", colorDim, colorReset, s.SessionID)
		cmd.Printf("%sShip:%s         %s\n", colorDim, colorReset, s.ShipID)
		cmd.Printf("%sLast active:%s  %s\n", colorDim, colorReset, s.LastActivity)
		cmd.Printf("%sExpires:%s      %s\n", colorDim, colorReset, s.ExpiresAt)
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List a session's execution history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hist, err := bayClient(cmd).History(args[0])
		if err != nil {
			printAPIError(cmd, err)
			return
		}
		for _, h := range hist.Items {
			icon := colorGreen + "✓" + colorReset
			if !h.Success {
				icon = colorRed + "✗" + colorReset
			}
			cmd.Printf("%s %s  %s  %dms\n", icon, h.ID, h.ExecType, h.ExecutionTimeMs)
		}
		cmd.Printf("%stotal: %d%s\n", colorDim, hist.Total, colorReset)
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd, sessionGetCmd, sessionHistoryCmd)
	rootCmd.AddCommand(sessionCmd)
}
