package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/engine"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee-id> <name> <image>",
	Short: "Enroll an identity from an image file",
	Long: `Enroll registers a new identity in the gallery and the configured
store. The image must contain exactly one live face that does not already
match an enrolled identity.`,
	Args: cobra.ExactArgs(3),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("email", "", "Contact email for the identity")
	enrollCmd.Flags().String("department", "", "Department the identity belongs to")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	employeeID, name, imagePath := args[0], args[1], args[2]

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg := config.Load()
	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	req := engine.Enrollment{
		OwnerID:    employeeID,
		Name:       name,
		Email:      mustGetString(cmd, "email"),
		Department: mustGetString(cmd, "department"),
	}
	result, err := eng.Enroll(cmd.Context(), req, imageBytes)
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled %s as %q (liveness %.3f)\n", result.OwnerID, result.Name, result.Liveness.Liveness)
	return nil
}
