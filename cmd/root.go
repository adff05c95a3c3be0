package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hadir",
	Short: "Face attendance kiosk for classrooms",
	Long: `Hadir runs face-recognition attendance sessions for classroom kiosks.
It matches camera embeddings against enrolled students, records check-ins
in a local ledger that survives network outages, and reconciles pending
rows with the campus attendance database in the background.`,
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
