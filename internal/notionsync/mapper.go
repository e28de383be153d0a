package notionsync

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/bank-importer/internal/infra/bigquery"
)

// TransactionToNotionProperties converts a committed transaction row to
// Notion properties. categoryPageIDs maps category_id to the Notion
// page of that category; when the id is present a relation is set,
// otherwise the category column is left empty.
func TransactionToNotionProperties(tx *bigquery.TransactionRow, categoryPageIDs map[string]string) notionapi.Properties {
	props := notionapi.Properties{
		"Description": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Description,
					},
				},
			},
		},
		"Transaction ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.TransactionID,
					},
				},
			},
		},
		"Date": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.Date(
						tx.TransactionDate.Year,
						tx.TransactionDate.Month,
						tx.TransactionDate.Day,
						0, 0, 0, 0, time.UTC,
					))
					return &d
				}(),
			},
		},
		"Amount": notionapi.NumberProperty{
			Number: func() float64 {
				if tx.Amount != nil {
					f, _ := tx.Amount.Float64()
					return f
				}
				return 0
			}(),
		},
		"Type": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.TransactionType,
			},
		},
	}

	// Category relation, when the category has a page in Notion.
	if tx.CategoryID.Valid && tx.CategoryID.StringVal != "" {
		if pageID, ok := categoryPageIDs[tx.CategoryID.StringVal]; ok {
			props["Category"] = notionapi.RelationProperty{
				Relation: []notionapi.Relation{
					{ID: notionapi.PageID(pageID)},
				},
			}
		}
	}

	if tx.Source.Valid && tx.Source.StringVal != "" {
		props["Source"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Source.StringVal,
			},
		}
	}

	if tx.ImportID != "" {
		props["Import ID"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.ImportID,
					},
				},
			},
		}
	}

	props["Imported At"] = notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: (*notionapi.Date)(&tx.CreatedTS),
		},
	}

	return props
}

// CategoryToNotionProperties converts a category taxonomy row to Notion
// properties.
func CategoryToNotionProperties(cat *bigquery.CategoryRow) notionapi.Properties {
	props := notionapi.Properties{
		"Category": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: cat.CategoryName,
					},
				},
			},
		},
		"Slug": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: cat.Slug,
					},
				},
			},
		},
	}

	if cat.IsActive.Valid {
		props["Is Active"] = notionapi.CheckboxProperty{
			Checkbox: cat.IsActive.Bool,
		}
	} else {
		props["Is Active"] = notionapi.CheckboxProperty{
			Checkbox: true,
		}
	}

	return props
}

// NotionPageID reads the Notion page id stored in the transaction's
// external_reference field. Returns empty when the transaction was
// never synced.
func NotionPageID(tx *bigquery.TransactionRow) string {
	if !tx.ExternalReference.Valid {
		return ""
	}
	ref := tx.ExternalReference.StringVal
	if strings.HasPrefix(ref, "notion:") {
		return strings.TrimPrefix(ref, "notion:")
	}
	return ""
}

// NotionReference formats a page id for the external_reference field.
func NotionReference(pageID string) string {
	return "notion:" + pageID
}

// extractTransactionID reads the Transaction ID property from a Notion
// page. Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties["Transaction ID"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}

// extractCategorySlug reads the Slug property from a Notion page.
// Returns empty string if not found.
func extractCategorySlug(page notionapi.Page) string {
	if prop, ok := page.Properties["Slug"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}
