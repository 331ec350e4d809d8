package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/config"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List and manage enrolled identities",
	Long:  `List active identities in the gallery. Use subcommands to deactivate them.`,
	RunE:  runUsersList,
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <employee-id>...",
	Short: "Deactivate identities by employee ID",
	Long: `Deactivate one or more identities. Deactivated identities stop
matching immediately; their attendance and audit history is kept.

Example:
  facepass users deactivate emp-001
  facepass users deactivate emp-001 emp-002`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUsersDeactivate,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersDeactivateCmd)
}

func runUsersList(cmd *cobra.Command, args []string) error {
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
	fmt.Fprintln(w, "EMPLOYEE ID\tNAME\tEMAIL\tDEPARTMENT\tENROLLED")
	fmt.Fprintln(w, "-----------\t----\t-----\t----------\t--------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.OwnerID, r.Name, r.Email, r.Department, r.EnrolledAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d identities\n", len(records))
	return nil
}

func runUsersDeactivate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var failed int
	for _, employeeID := range args {
		if err := eng.Deactivate(cmd.Context(), employeeID); err != nil {
			fmt.Printf("  %s: %v\n", employeeID, err)
			failed++
			continue
		}
		fmt.Printf("  %s: deactivated\n", employeeID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deactivations failed", failed, len(args))
	}
	return nil
}
