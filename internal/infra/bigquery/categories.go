package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-importer/internal/categorize"
)

// CategoryStore reads the category taxonomy. The taxonomy is managed
// externally; this store never writes it.
type CategoryStore struct {
	c *Client
}

var _ categorize.CategoryStore = (*CategoryStore)(nil)

func NewCategoryStore(c *Client) *CategoryStore {
	return &CategoryStore{c: c}
}

// LookupBySlug resolves a taxonomy slug to its category id.
func (s *CategoryStore) LookupBySlug(ctx context.Context, slug string) (string, error) {
	q := s.c.query(`
		SELECT category_id
		FROM %s.%s
		WHERE slug = @slug
		  AND is_active = TRUE
	`, s.c.cfg.Dataset, categoriesTable)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "slug", Value: slug},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("LookupBySlug: query read: %w", err)
	}

	var row struct {
		CategoryID string `bigquery:"category_id"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", fmt.Errorf("LookupBySlug: no active category with slug %q", slug)
	}
	if err != nil {
		return "", fmt.Errorf("LookupBySlug: iter next: %w", err)
	}

	return row.CategoryID, nil
}

// ListActiveCategories returns all active categories ordered by name.
func (s *CategoryStore) ListActiveCategories(ctx context.Context) ([]CategoryRow, error) {
	q := s.c.query(`
		SELECT
			category_id,
			category_name,
			slug,
			is_active,
			created_ts
		FROM %s.%s
		WHERE is_active = TRUE
		ORDER BY category_name
	`, s.c.cfg.Dataset, categoriesTable)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveCategories: query read: %w", err)
	}

	var rows []CategoryRow
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveCategories: iter next: %w", err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}
