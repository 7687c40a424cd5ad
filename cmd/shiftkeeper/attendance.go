package main

import (
	"fmt"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/api"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/spf13/cobra"
)

// Attendance commands
var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect, excuse and review attendance rows",
}

var attendanceGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one attendance row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		row, err := c.GetAttendance(args[0])
		if err != nil {
			return err
		}
		return printJSON(row)
	},
}

var attendanceListCmd = &cobra.Command{
	Use:   "list USER_ID",
	Short: "List a user's attendance rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		rows, err := c.ListUserAttendances(args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Printf("No attendance rows for %s\n", args[0])
			return nil
		}

		fmt.Printf("%-36s  %-24s  %-14s  %-5s  %-5s  %-6s  %s\n",
			"ID", "OCCURRENCE", "STATUS", "LATE", "EARLY", "MAKEUP", "EXCUSED")
		for _, row := range rows {
			fmt.Printf("%-36s  %-24s  %-14s  %-5t  %-5t  %-6t  %t\n",
				row.ID, row.ShiftOccurrenceID, row.Status,
				row.DidArriveLate, row.DidLeaveEarly, row.IsMakeup, row.IsExcused)
		}
		return nil
	},
}

var attendanceExcuseCmd = &cobra.Command{
	Use:   "excuse ID",
	Short: "Excuse an absence, late arrival or early departure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		notes, _ := cmd.Flags().GetString("notes")
		clearExcuse, _ := cmd.Flags().GetBool("clear")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		row, err := c.Excuse(args[0], by, notes, !clearExcuse)
		if err != nil {
			return err
		}
		if row.IsExcused {
			fmt.Printf("✓ Attendance excused: %s\n", row.ID)
		} else {
			fmt.Printf("✓ Excuse cleared: %s\n", row.ID)
		}
		return nil
	},
}

var attendanceReviewCmd = &cobra.Command{
	Use:   "review ID",
	Short: "Mark an attendance row as reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		row, err := c.Review(args[0], by)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Attendance reviewed: %s (by %s)\n", row.ID, row.ReviewedByID)
		return nil
	},
}

func init() {
	attendanceCmd.AddCommand(attendanceGetCmd)
	attendanceCmd.AddCommand(attendanceListCmd)
	attendanceCmd.AddCommand(attendanceExcuseCmd)
	attendanceCmd.AddCommand(attendanceReviewCmd)

	attendanceExcuseCmd.Flags().String("by", "", "User ID of the person excusing (required)")
	attendanceExcuseCmd.Flags().String("notes", "", "Reason for the excuse")
	attendanceExcuseCmd.Flags().Bool("clear", false, "Clear an existing excuse instead of setting one")
	_ = attendanceExcuseCmd.MarkFlagRequired("by")

	attendanceReviewCmd.Flags().String("by", "", "User ID of the reviewer (required)")
	_ = attendanceReviewCmd.MarkFlagRequired("by")

	rootCmd.AddCommand(attendanceCmd)
}

// Session commands
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Record tap-ins and tap-outs by hand",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start USER_ID",
	Short: "Tap a user in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regular, _ := cmd.Flags().GetBool("regular")
		at, err := timeFlag(cmd, "at")
		if err != nil {
			return err
		}

		req := api.StartSessionRequest{UserID: args[0], Type: types.SessionTypeStaffing, StartedAt: at}
		if regular {
			req.Type = types.SessionTypeRegular
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		session, err := c.StartSession(req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Session started: %s (%s, %s)\n", session.ID, session.Type, session.StartedAt.Format(time.RFC3339))
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end SESSION_ID",
	Short: "Tap a session out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := timeFlag(cmd, "at")
		if err != nil {
			return err
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.EndSession(args[0], at)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Session ended: %s (closed %d attendance rows)\n", resp.Session.ID, resp.ClosedAttendances)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)

	sessionStartCmd.Flags().Bool("regular", false, "Record a regular visit instead of a staffing session")
	sessionStartCmd.Flags().String("at", "", "Tap-in time (RFC3339, default now)")
	sessionEndCmd.Flags().String("at", "", "Tap-out time (RFC3339, default now)")

	rootCmd.AddCommand(sessionCmd)
}

func timeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return &t, nil
}
