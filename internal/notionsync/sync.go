package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/bank-importer/internal/infra/bigquery"
	"github.com/dvloznov/bank-importer/internal/logger"
)

// batchSize caps how many transactions are handled per processing loop.
const batchSize = 100

// TransactionLister reads committed transactions for the sync window.
type TransactionLister interface {
	ListByDateRange(ctx context.Context, ownerID string, start, end time.Time) ([]*bigquery.TransactionRow, error)
}

// CategoryLister reads the active category taxonomy.
type CategoryLister interface {
	ListActiveCategories(ctx context.Context) ([]bigquery.CategoryRow, error)
}

// SyncTransactions mirrors the owner's active transactions in the given
// date window into a Notion database. Pages whose Transaction ID is no
// longer in the active set are archived, missing transactions are
// created. The Transaction ID property keeps the sync idempotent.
func SyncTransactions(ctx context.Context, txs TransactionLister, notion NotionService, notionDBID, ownerID string, start, end time.Time, categoryPageIDs map[string]string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Time("start_date", start).
		Time("end_date", end).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	transactions, err := txs.ListByDateRange(ctx, ownerID, start, end)
	if err != nil {
		return fmt.Errorf("SyncTransactions: listing transactions: %w", err)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	validIDs := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		validIDs[tx.TransactionID] = true
	}

	pages, err := queryAllNotionPages(ctx, notion, notionDBID)
	if err != nil {
		return fmt.Errorf("SyncTransactions: querying Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existingIDs := make(map[string]bool)
	for _, page := range pages {
		if txID := extractTransactionID(page); txID != "" {
			existingIDs[txID] = true
		}
	}

	// Archive pages that no longer correspond to an active transaction,
	// including pages with no Transaction ID left over from older syncs.
	var deleted int
	for _, page := range pages {
		txID := extractTransactionID(page)
		if txID != "" && validIDs[txID] {
			continue
		}

		if dryRun {
			log.Info().
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			deleted++
			continue
		}

		if err := notion.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			continue
		}
		deleted++
	}

	var created, updated, skipped int
	for i := 0; i < len(transactions); i += batchSize {
		endIdx := i + batchSize
		if endIdx > len(transactions) {
			endIdx = len(transactions)
		}

		for _, tx := range transactions[i:endIdx] {
			if existingIDs[tx.TransactionID] {
				skipped++
				continue
			}

			pageID := NotionPageID(tx)

			if dryRun {
				if pageID != "" {
					updated++
				} else {
					created++
				}
				log.Info().
					Str("transaction_id", tx.TransactionID).
					Msg("[DRY RUN] Would sync transaction")
				continue
			}

			props := TransactionToNotionProperties(tx, categoryPageIDs)

			if pageID != "" {
				if _, err := notion.UpdatePage(ctx, pageID, props); err != nil {
					log.Warn().
						Err(err).
						Str("transaction_id", tx.TransactionID).
						Str("page_id", pageID).
						Msg("Failed to update Notion page")
					continue
				}
				updated++
				continue
			}

			page, err := notion.CreatePage(ctx, notionDBID, props)
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.TransactionID).
					Msg("Failed to create Notion page")
				continue
			}
			log.Debug().
				Str("transaction_id", tx.TransactionID).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			created++
		}
	}

	log.Info().
		Int("deleted", deleted).
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return nil
}

// SyncCategories mirrors the active category taxonomy into a Notion
// database and returns a category_id to Notion page id map for use as
// transaction relations. Stale categories are archived by slug.
func SyncCategories(ctx context.Context, cats CategoryLister, notion NotionService, notionDBID string, dryRun bool) (map[string]string, error) {
	log := logger.FromContext(ctx)

	log.Info().Bool("dry_run", dryRun).Msg("Starting category sync to Notion")

	categories, err := cats.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncCategories: listing categories: %w", err)
	}

	validSlugs := make(map[string]bool, len(categories))
	for _, cat := range categories {
		validSlugs[cat.Slug] = true
	}

	pages, err := queryAllNotionPages(ctx, notion, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncCategories: querying Notion pages: %w", err)
	}

	existingPages := make(map[string]string)
	var deleted int
	for _, page := range pages {
		slug := extractCategorySlug(page)
		if slug != "" && validSlugs[slug] {
			existingPages[slug] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().
				Str("slug", slug).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale category page")
			deleted++
			continue
		}

		if err := notion.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("slug", slug).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale category page")
			continue
		}
		deleted++
	}

	categoryPageIDs := make(map[string]string, len(categories))

	var created, skipped int
	for i := range categories {
		cat := &categories[i]

		if pageID, ok := existingPages[cat.Slug]; ok {
			categoryPageIDs[cat.CategoryID] = pageID
			skipped++
			continue
		}

		if dryRun {
			log.Info().
				Str("category_id", cat.CategoryID).
				Str("category_name", cat.CategoryName).
				Msg("[DRY RUN] Would create category page")
			created++
			continue
		}

		page, err := notion.CreatePage(ctx, notionDBID, CategoryToNotionProperties(cat))
		if err != nil {
			log.Warn().
				Err(err).
				Str("category_id", cat.CategoryID).
				Str("category_name", cat.CategoryName).
				Msg("Failed to create category page")
			continue
		}

		categoryPageIDs[cat.CategoryID] = string(page.ID)
		created++
	}

	log.Info().
		Int("deleted", deleted).
		Int("created", created).
		Int("skipped", skipped).
		Int("total", len(categories)).
		Msg("Category sync completed")

	return categoryPageIDs, nil
}

// queryAllNotionPages pages through an entire Notion database.
func queryAllNotionPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
