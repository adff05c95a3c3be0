package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/config"
	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Manage the class registry",
}

var classesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a class with its session PIN",
	Long: `Register a class in the local registry. The PIN authorizes opening
attendance sessions for the class and is stored as a bcrypt hash.

Example:
  hadir classes add --code if4021 --name "Jaringan Komputer" --pin 1234 --meetings 16`,
	RunE: runClassesAdd,
}

var classesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered classes",
	RunE:  runClassesList,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.AddCommand(classesAddCmd)
	classesCmd.AddCommand(classesListCmd)

	classesAddCmd.Flags().String("code", "", "Class code, e.g. if4021 (required)")
	classesAddCmd.Flags().String("name", "", "Display name (required)")
	classesAddCmd.Flags().String("pin", "", "Session PIN (required)")
	classesAddCmd.Flags().Int("meetings", classes.DefaultMeetings, "Number of meetings in the term")
	_ = classesAddCmd.MarkFlagRequired("code")
	_ = classesAddCmd.MarkFlagRequired("name")
	_ = classesAddCmd.MarkFlagRequired("pin")
}

func runClassesAdd(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	registry, err := classes.Open(cfg.Classes.Path)
	if err != nil {
		return fmt.Errorf("opening class registry: %w", err)
	}

	class, err := registry.Add(
		mustGetString(cmd, "code"),
		mustGetString(cmd, "name"),
		mustGetString(cmd, "pin"),
		mustGetInt(cmd, "meetings"),
	)
	if err != nil {
		return fmt.Errorf("registering class: %w", err)
	}

	fmt.Printf("Registered %s (%s) with %d meetings\n", class.Code, class.Name, class.MeetingCount())
	return nil
}

func runClassesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry, err := classes.Open(cfg.Classes.Path)
	if err != nil {
		return fmt.Errorf("opening class registry: %w", err)
	}

	list := registry.List()
	if len(list) == 0 {
		fmt.Println("No classes registered")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, []string{c.Code, c.Name, strconv.Itoa(c.MeetingCount())})
	}

	fmt.Println(renderTable(
		[]string{"Code", "Name", "Meetings"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return nil
}
