package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/categorize"
	"github.com/dvloznov/bank-importer/internal/gcsdocs"
	"github.com/dvloznov/bank-importer/internal/importer"
	infraBQ "github.com/dvloznov/bank-importer/internal/infra/bigquery"
	"github.com/dvloznov/bank-importer/internal/logger"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "preview":
		runPreview(log)
	case "import":
		runImport(log)
	case "history":
		runHistory(log)
	case "cancel":
		runCancel(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Importer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  preview   Parse a local statement file and print the detected rows")
	fmt.Println("  import    Import a local statement file end to end")
	fmt.Println("  history   List past imports")
	fmt.Println("  cancel    Cancel an import and withdraw its transactions")
	fmt.Println("  upload    Upload an invoice document to GCS")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// slugEcho satisfies the categorizer's store with the slug itself, so
// offline preview works without a category table.
type slugEcho struct{}

func (slugEcho) LookupBySlug(_ context.Context, slug string) (string, error) {
	return slug, nil
}

// memoryImports keeps preview jobs in memory for the offline commands.
type memoryImports struct {
	jobs map[string]*importer.Job
}

func (m *memoryImports) CreateImport(_ context.Context, job *importer.Job) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryImports) GetImport(_ context.Context, ownerID, importID string) (*importer.Job, error) {
	job, ok := m.jobs[importID]
	if !ok || job.OwnerID != ownerID {
		return nil, importer.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryImports) UpdateImport(_ context.Context, job *importer.Job) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryImports) ListImports(_ context.Context, _ string, _ int) ([]*importer.Job, error) {
	return nil, nil
}

type discardTransactions struct{}

func (discardTransactions) CreateTransaction(_ context.Context, tx *importer.Transaction) (string, error) {
	return tx.ID, nil
}
func (discardTransactions) WithdrawByImport(_ context.Context, _, _ string) error { return nil }
func (discardTransactions) ListByImport(_ context.Context, _, _ string) ([]string, error) {
	return nil, nil
}

func runPreview(log zerolog.Logger) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the statement file")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)

	categorizer := categorize.New(slugEcho{}, log)
	svc := importer.NewService(&memoryImports{jobs: map[string]*importer.Job{}}, discardTransactions{}, categorizer, log)

	result, err := svc.StartImport(ctx, "local", importer.Upload{
		FileName: filepath.Base(*filePath),
		Size:     int64(len(content)),
		Content:  content,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Preview failed")
	}

	fmt.Printf("\n=== %s ===\n", result.Job.FileName)
	fmt.Printf("Format:   %s\n", result.Job.Format)
	fmt.Printf("Rows:     %d scanned, %d detected, %d skipped\n",
		result.Job.TotalRows, result.Detected, result.Job.SkippedRows)

	for i, c := range result.Candidates {
		fmt.Printf("\n%d. %s\n", i+1, c.Description)
		fmt.Printf("   Date:     %s\n", c.Date.Format("2006-01-02"))
		fmt.Printf("   Amount:   %.2f (%s)\n", c.Amount, c.Type)
		if c.CategoryID != "" {
			fmt.Printf("   Category: %s\n", c.CategoryID)
		}
	}
	fmt.Println()
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the statement file")
	userID := fs.String("user", "", "Owner user ID")
	project := fs.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID")
	dataset := fs.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli import -file PATH -user ID")
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, closeFn := buildService(ctx, log, *project, *dataset)
	defer closeFn()

	result, err := svc.StartImport(ctx, *userID, importer.Upload{
		FileName: filepath.Base(*filePath),
		Size:     int64(len(content)),
		Content:  content,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Detected %d transactions in %s\n", result.Detected, result.Job.FileName)

	confirmed, err := svc.ConfirmImport(ctx, *userID, result.Job.ID, result.Candidates)
	if err != nil {
		log.Fatal().Err(err).Msg("Confirm failed")
	}

	fmt.Printf("Imported %d, failed %d (status: %s)\n", confirmed.Imported, confirmed.Failed, confirmed.Status)
	for _, rowErr := range confirmed.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.RowIndex, rowErr.Message)
	}
}

func runHistory(log zerolog.Logger) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	userID := fs.String("user", "", "Owner user ID")
	project := fs.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID")
	dataset := fs.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset")
	limit := fs.Int("limit", 20, "Maximum number of imports to list")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, closeFn := buildService(ctx, log, *project, *dataset)
	defer closeFn()

	imports, err := svc.History(ctx, *userID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list imports")
	}

	fmt.Printf("\n=== Imports (%d) ===\n", len(imports))
	for _, job := range imports {
		fmt.Printf("%s  %-10s  %s  (%d/%d rows)\n",
			job.CreatedAt.Format("2006-01-02 15:04"), job.Status, job.FileName,
			job.SuccessfulRows, job.TotalRows)
		fmt.Printf("  id: %s\n", job.ID)
	}
	fmt.Println()
}

func runCancel(log zerolog.Logger) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	userID := fs.String("user", "", "Owner user ID")
	importID := fs.String("import-id", "", "Import ID to cancel")
	project := fs.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID")
	dataset := fs.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset")
	fs.Parse(os.Args[2:])

	if *userID == "" || *importID == "" {
		log.Fatal().Msg("Usage: cli cancel -user ID -import-id ID")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, closeFn := buildService(ctx, log, *project, *dataset)
	defer closeFn()

	if err := svc.CancelImport(ctx, *userID, *importID); err != nil {
		log.Fatal().Err(err).Msg("Cancel failed")
	}

	fmt.Printf("Import %s cancelled; its transactions were withdrawn.\n", *importID)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local document")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)

	docs, err := gcsdocs.NewProvider(ctx, *bucketName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document provider")
	}
	defer docs.Close()

	documentID, err := docs.Upload(ctx, *objectName, "application/pdf", content)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s (document id: %s)\n", *filePath, *bucketName, *objectName, documentID)
}

func buildService(ctx context.Context, log zerolog.Logger, project, dataset string) (*importer.Service, func()) {
	bqClient, err := infraBQ.NewClient(ctx, infraBQ.Config{ProjectID: project, Dataset: dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}

	categorizer := categorize.New(infraBQ.NewCategoryStore(bqClient), log)
	svc := importer.NewService(
		infraBQ.NewImportStore(bqClient),
		infraBQ.NewTransactionStore(bqClient),
		categorizer,
		log,
	)
	return svc, func() { _ = bqClient.Close() }
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
