package statement

import (
	"fmt"
	"strings"
)

// Canonical field names produced by the resolver.
const (
	FieldDate          = "date"
	FieldAmount        = "amount"
	FieldDescription   = "description"
	FieldOperationType = "operation_type"
	FieldReference     = "reference"
)

// fieldAliases maps each canonical field to the provider header names
// that may carry it, in priority order: the first alias present with a
// non-empty value wins. The lists are data, not code — supporting a new
// bank export means extending a list here, not touching parsing logic.
var fieldAliases = map[string][]string{
	FieldDate:          {"Date d'opération", "Date", "date", "Date opération", "Date de valeur"},
	FieldAmount:        {"Montant", "montant", "Amount", "amount", "Débit", "Crédit", "Solde"},
	FieldDescription:   {"Détail 1", "Description", "description", "Libellé", "libelle", "Payee"},
	FieldOperationType: {"Type de l'opération", "Type", "type", "Opération", "Mode"},
	FieldReference:     {"Référence de l'opération", "Référence", "reference", "Ref", "ID"},
}

// maxDetailColumns bounds the numbered "Détail N" description columns
// some exports split a label across.
const maxDetailColumns = 6

// ResolvedFields is the best-effort canonical view of one raw row. Any
// field the row does not carry is left empty; validity is the caller's
// call (date, amount and description are mandatory for a candidate).
type ResolvedFields struct {
	Date          string
	Amount        string
	Description   string
	OperationType string
	Reference     string
}

// ResolveFields maps provider-specific column names onto the canonical
// field set using the ordered alias lists.
func ResolveFields(row RawRow) ResolvedFields {
	return ResolvedFields{
		Date:          firstAlias(row, fieldAliases[FieldDate]),
		Amount:        firstAlias(row, fieldAliases[FieldAmount]),
		Description:   resolveDescription(row),
		OperationType: firstAlias(row, fieldAliases[FieldOperationType]),
		Reference:     firstAlias(row, fieldAliases[FieldReference]),
	}
}

func firstAlias(row RawRow, aliases []string) string {
	for _, name := range aliases {
		if v, ok := row[name]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// resolveDescription concatenates the numbered detail columns in order,
// joined with single spaces. Only when no detail column is present does
// it fall back to the classic description aliases.
func resolveDescription(row RawRow) string {
	var parts []string
	for i := 1; i <= maxDetailColumns; i++ {
		name := fmt.Sprintf("Détail %d", i)
		if v, ok := row[name]; ok && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return firstAlias(row, fieldAliases[FieldDescription])
}
