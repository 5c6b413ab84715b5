package cmd

import (
	"fmt"

	"fileferry/internal/genfiles"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type GenFilesFlags struct {
	Dir   string
	Count int
}

var genFilesFlags GenFilesFlags

// genFilesCmd represents the genfiles command
var genFilesCmd = &cobra.Command{
	Use:   "genfiles",
	Short: "Generate random test files",
	Long: `Generate a folder of test files with randomized sizes (small, medium
and large classes) for exercising concurrent transfers.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if genFilesFlags.Count <= 0 {
			return fmt.Errorf("count must be greater than 0")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		gen := genfiles.New(genFilesFlags.Dir, genFilesFlags.Count)
		if _, err := gen.Generate(); err != nil {
			logrus.Fatalf("File generation failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(genFilesCmd)

	genFilesCmd.Flags().StringVar(&genFilesFlags.Dir, "dir", "files2transfer", "Folder to generate files into")
	genFilesCmd.Flags().IntVar(&genFilesFlags.Count, "count", 20, "Number of files to generate")
}
