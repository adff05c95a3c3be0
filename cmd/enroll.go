package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage student face enrollments",
}

var enrollImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import student embeddings from a manifest file",
	Long: `Import student face embeddings from a JSONL manifest into the
enrollment database. Each line carries one student with their reference
embeddings. Vectors already enrolled (same fingerprint) are skipped.

Examples:
  # Enroll new students
  hadir enroll import --manifest students.jsonl

  # Re-enroll a cohort from scratch
  hadir enroll import --manifest students.jsonl --replace`,
	RunE: runEnrollImport,
}

var enrollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	RunE:  runEnrollList,
}

var enrollRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a student's enrollments",
	RunE:  runEnrollRemove,
}

var enrollSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a manifest snapshot of the enrollment database",
	Long: `Write every enrolled student to a JSONL manifest. Kiosks without a
database connection load this file on startup, so run it whenever the
cohort changes.`,
	RunE: runEnrollSnapshot,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.AddCommand(enrollImportCmd)
	enrollCmd.AddCommand(enrollListCmd)
	enrollCmd.AddCommand(enrollRemoveCmd)
	enrollCmd.AddCommand(enrollSnapshotCmd)

	enrollImportCmd.Flags().String("manifest", "", "JSONL manifest file to import (required)")
	enrollImportCmd.Flags().Bool("replace", false, "Drop each student's existing embeddings before importing")
	_ = enrollImportCmd.MarkFlagRequired("manifest")

	enrollRemoveCmd.Flags().String("nim", "", "Student number to remove (required)")
	_ = enrollRemoveCmd.MarkFlagRequired("nim")

	enrollSnapshotCmd.Flags().String("out", "", "Output path (defaults to the configured manifest path)")
}

// connectEnrollment opens the enrollment database for CLI commands.
func connectEnrollment(cfg *config.Config) (*postgres.EnrollmentRepository, func(), error) {
	if cfg.Enrollment.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required for enrollment commands")
	}
	pool, err := postgres.Connect(&cfg.Enrollment)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to enrollment database: %w", err)
	}
	return postgres.NewEnrollmentRepository(pool), func() { _ = pool.Close() }, nil
}

func runEnrollImport(cmd *cobra.Command, args []string) error {
	manifestPath := mustGetString(cmd, "manifest")
	replace := mustGetBool(cmd, "replace")

	f, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	identities, err := database.ReadManifest(f)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	if len(identities) == 0 {
		return errors.New("manifest holds no students")
	}

	repo, closeRepo, err := connectEnrollment(config.Load())
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx := cmd.Context()
	bar := progressbar.NewOptions(len(identities),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	var saved int
	for _, id := range identities {
		if replace {
			if _, err := repo.RemoveStudent(ctx, id.NIM); err != nil {
				return fmt.Errorf("removing old embeddings for %s: %w", id.NIM, err)
			}
		}

		batch := make([]postgres.StoredEnrollment, 0, len(id.Embeddings))
		for _, emb := range id.Embeddings {
			batch = append(batch, postgres.StoredEnrollment{
				NIM:         id.NIM,
				Name:        id.Name,
				Embedding:   emb,
				Fingerprint: database.Fingerprint(emb),
			})
		}

		n, err := repo.SaveBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("enrolling %s: %w", id.NIM, err)
		}
		saved += n
		bar.Add(1)
	}

	fmt.Printf("\nEnrolled %d new embeddings across %d students\n", saved, len(identities))
	return nil
}

func runEnrollList(cmd *cobra.Command, args []string) error {
	repo, closeRepo, err := connectEnrollment(config.Load())
	if err != nil {
		return err
	}
	defer closeRepo()

	students, err := repo.Students(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing students: %w", err)
	}
	if len(students) == 0 {
		fmt.Println("No students enrolled")
		return nil
	}

	rows := make([][]string, 0, len(students))
	for _, s := range students {
		rows = append(rows, []string{
			s.NIM,
			s.Name,
			strconv.Itoa(s.Embeddings),
			s.EnrolledAt.Format("2006-01-02"),
		})
	}

	fmt.Println(renderTable(
		[]string{"NIM", "Name", "Embeddings", "Enrolled"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Printf("%d students\n", len(students))
	return nil
}

func runEnrollRemove(cmd *cobra.Command, args []string) error {
	nim := mustGetString(cmd, "nim")
	if !database.ValidNIM(nim) {
		return fmt.Errorf("invalid NIM %q", nim)
	}

	repo, closeRepo, err := connectEnrollment(config.Load())
	if err != nil {
		return err
	}
	defer closeRepo()

	removed, err := repo.RemoveStudent(cmd.Context(), nim)
	if err != nil {
		return fmt.Errorf("removing student: %w", err)
	}
	if removed == 0 {
		fmt.Printf("No enrollments found for %s\n", nim)
		return nil
	}
	fmt.Printf("Removed %d embeddings for %s\n", removed, nim)
	return nil
}

func runEnrollSnapshot(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	out := mustGetString(cmd, "out")
	if out == "" {
		out = cfg.Enrollment.ManifestPath
	}

	repo, closeRepo, err := connectEnrollment(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	identities, err := repo.Identities(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading enrollments: %w", err)
	}
	if len(identities) == 0 {
		return errors.New("no students enrolled, nothing to snapshot")
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := database.WriteManifest(f, identities); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	fmt.Printf("Wrote %d students to %s\n", len(identities), out)
	return nil
}
