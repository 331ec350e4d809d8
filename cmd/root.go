package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facepass",
	Short: "Face recognition attendance engine",
	Long: `FacePass authenticates people from camera frames and drives an
attendance punch-in/punch-out log. It normalizes each frame, locates the
face, extracts a histogram descriptor, matches it against the enrolled
gallery and scores liveness before committing an attendance transition.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
