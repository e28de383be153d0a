package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	infraBQ "github.com/dvloznov/bank-importer/internal/infra/bigquery"
	"github.com/dvloznov/bank-importer/internal/logger"
	"github.com/dvloznov/bank-importer/internal/notionsync"
)

func main() {
	log := logger.New()

	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (required)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format (required)")
	userID := flag.String("user", "", "Owner user ID (required)")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token (or set NOTION_TOKEN env)")
	transactionsDBID := flag.String("transactions-db-id", "", "Notion database ID for transactions (required)")
	categoriesDBID := flag.String("categories-db-id", "", "Notion database ID for categories (optional)")
	project := flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
	dataset := flag.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset (or set BQ_DATASET env)")
	dryRun := flag.Bool("dry-run", false, "Preview changes without syncing")
	flag.Parse()

	if *startDateStr == "" {
		log.Fatal().Msg("Error: --start-date is required")
	}
	if *endDateStr == "" {
		log.Fatal().Msg("Error: --end-date is required")
	}
	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *transactionsDBID == "" {
		log.Fatal().Msg("Error: --transactions-db-id is required")
	}

	startDate, err := time.Parse("2006-01-02", *startDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}

	endDate, err := time.Parse("2006-01-02", *endDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}

	if endDate.Before(startDate) {
		log.Fatal().
			Time("start_date", startDate).
			Time("end_date", endDate).
			Msg("Error: end-date must be after start-date")
	}

	// Bounded context so the CLI doesn't hang.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	bqClient, err := infraBQ.NewClient(ctx, infraBQ.Config{ProjectID: *project, Dataset: *dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	transactionStore := infraBQ.NewTransactionStore(bqClient)
	categoryStore := infraBQ.NewCategoryStore(bqClient)

	notionClient := notionsync.NewNotionClient(*notionToken)

	// Categories first, so transactions can reference their pages.
	var categoryPageIDs map[string]string
	if *categoriesDBID != "" {
		categoryPageIDs, err = notionsync.SyncCategories(ctx, categoryStore, notionClient, *categoriesDBID, *dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Category sync failed")
		}
	}

	if err := notionsync.SyncTransactions(ctx, transactionStore, notionClient, *transactionsDBID, *userID, startDate, endDate, categoryPageIDs, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
