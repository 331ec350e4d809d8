package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/attendance"
	"github.com/facepass/facepass/internal/config"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect attendance records",
	RunE:  runAttendanceToday,
}

var attendanceHistoryCmd = &cobra.Command{
	Use:   "history <employee-id>",
	Short: "Show attendance history for one identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceHistory,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceHistoryCmd)

	attendanceHistoryCmd.Flags().Int("days", 30, "Number of days to look back")
}

func formatPunch(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Format("15:04:05")
}

func runAttendanceToday(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records := eng.Gallery().List()
	if len(records) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMPLOYEE ID\tNAME\tSTATUS\tIN\tOUT")
	fmt.Fprintln(w, "-----------\t----\t------\t--\t---")
	for _, r := range records {
		state, ok, err := eng.Tracker().Today(cmd.Context(), r.OwnerID)
		if err != nil {
			return fmt.Errorf("load attendance for %s: %w", r.OwnerID, err)
		}
		status, in, out := "absent", "-", "-"
		if ok {
			in = formatPunch(state.PunchInAt)
			out = formatPunch(state.PunchOutAt)
			if state.CheckedIn() {
				status = "present"
			} else {
				status = "left"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.OwnerID, r.Name, status, in, out)
	}
	return w.Flush()
}

func runAttendanceHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	employeeID := args[0]
	days := mustGetInt(cmd, "days")
	if days < 1 {
		days = 1
	}

	_, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now()
	from := attendance.DateKey(now.AddDate(0, 0, -days+1))
	to := attendance.DateKey(now)

	rows, err := store.History(cmd.Context(), employeeID, from, to)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("No attendance records for %s in the last %d days\n", employeeID, days)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tIN\tOUT\tLAST ACTION")
	fmt.Fprintln(w, "---\t--\t---\t-----------")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Day, formatPunch(row.PunchInAt), formatPunch(row.PunchOutAt), row.LastAction)
	}
	return w.Flush()
}
