package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/engine"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify a face and apply the attendance transition",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Run detection and liveness scoring without touching attendance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	imageBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg := config.Load()
	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := eng.Identify(cmd.Context(), imageBytes)
	if err != nil {
		return err
	}

	switch result.Decision {
	case engine.DecisionAccepted:
		if result.TooSoon {
			fmt.Printf("Accepted %s (%s), similarity %.3f - too soon since last punch\n",
				result.OwnerID, result.Name, result.Similarity)
			return nil
		}
		fmt.Printf("Accepted %s (%s), similarity %.3f - %s at %s\n",
			result.OwnerID, result.Name, result.Similarity,
			result.Attendance.LastAction, result.Attendance.LastEventAt.Format("15:04:05"))
	case engine.DecisionNoMatch:
		fmt.Printf("No match (best similarity %.3f)\n", result.Similarity)
	case engine.DecisionSpoof:
		fmt.Printf("Spoof suspected for %s: liveness %.3f (texture %.2f, reflection %.2f, sharpness %.2f)\n",
			result.OwnerID, result.Liveness.Liveness,
			result.Liveness.Texture, result.Liveness.Reflection, result.Liveness.Sharpness)
	case engine.DecisionNoFace:
		fmt.Println("No face detected")
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	imageBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg := config.Load()
	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := eng.Analyze(cmd.Context(), imageBytes)
	if err != nil {
		return err
	}

	if !result.FaceFound {
		fmt.Println("No face detected")
		return nil
	}
	fmt.Printf("Face at %v\n", result.Region)
	fmt.Printf("Liveness %.3f (texture %.2f, reflection %.2f, sharpness %.2f) - live: %v\n",
		result.Liveness.Liveness, result.Liveness.Texture,
		result.Liveness.Reflection, result.Liveness.Sharpness, result.Live)
	return nil
}
