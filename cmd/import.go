package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/engine"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-enroll identities from a directory of images",
	Long: `Import enrolls every image in a directory. File names encode the
identity as <employee-id>_<name>.<ext>, e.g. emp-001_alice-novak.jpg.
Images failing the pipeline (no face, spoof, duplicate) are reported and
skipped; the rest are enrolled.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "Parse and report without enrolling")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
}

// parseImportName splits <employee-id>_<name>.<ext> into its parts.
func parseImportName(filename string) (employeeID, name string, err error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	employeeID, name, found := strings.Cut(base, "_")
	if !found || employeeID == "" || name == "" {
		return "", "", fmt.Errorf("file %q does not match <employee-id>_<name>.<ext>", filename)
	}
	return employeeID, strings.ReplaceAll(name, "-", " "), nil
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := args[0]
	dryRun := mustGetBool(cmd, "dry-run")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return errors.New("no images found")
	}

	fmt.Printf("Found %d images to import\n\n", len(files))
	if dryRun {
		for _, f := range files {
			employeeID, name, err := parseImportName(f)
			if err != nil {
				fmt.Printf("  skip: %v\n", err)
				continue
			}
			fmt.Printf("  %s -> %s (%s)\n", f, employeeID, name)
		}
		return nil
	}

	cfg := config.Load()
	eng, store, err := buildEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped int
	var failures []string
	for _, f := range files {
		_ = bar.Add(1)

		employeeID, name, err := parseImportName(f)
		if err != nil {
			skipped++
			failures = append(failures, err.Error())
			continue
		}

		imageBytes, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			skipped++
			failures = append(failures, fmt.Sprintf("%s: %v", f, err))
			continue
		}

		req := engine.Enrollment{OwnerID: employeeID, Name: name}
		if _, err := eng.Enroll(cmd.Context(), req, imageBytes); err != nil {
			skipped++
			failures = append(failures, fmt.Sprintf("%s: %v", f, err))
			continue
		}
		enrolled++
	}

	fmt.Printf("\n\nEnrolled %d, skipped %d\n", enrolled, skipped)
	for _, msg := range failures {
		fmt.Printf("  %s\n", msg)
	}
	return nil
}
