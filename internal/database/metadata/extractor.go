package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/RichardFellows/data-refresh/internal/database"
)

// indexQuery lists every index on a table with its ordered key columns.
// Included columns are excluded; a partition switch aligns on key layout.
const indexQuery = `
SELECT
    i.name AS index_name,
    i.type_desc AS type_desc,
    i.is_unique AS is_unique,
    STRING_AGG(c.name, ', ') WITHIN GROUP (ORDER BY ic.key_ordinal) AS columns
FROM sys.indexes i
INNER JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
INNER JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
INNER JOIN sys.objects o ON i.object_id = o.object_id
WHERE o.name = @p1
AND i.type > 0
AND ic.is_included_column = 0
GROUP BY i.name, i.type_desc, i.is_unique, i.index_id
ORDER BY i.index_id`

// IndexDefinition describes one index on a target table, sufficient to
// replicate it onto a staging table before a partition switch.
type IndexDefinition struct {
	Name     string   `json:"name"`
	TypeDesc string   `json:"typeDesc"`
	IsUnique bool     `json:"isUnique"`
	Columns  []string `json:"columns"`
}

// CreateDDL renders the CREATE INDEX statement for this definition against
// another table, suffixing the index name to avoid a catalog collision.
func (d IndexDefinition) CreateDDL(table, nameSuffix string) (string, error) {
	if err := database.ValidateIdentifier(table); err != nil {
		return "", err
	}
	indexName := d.Name + nameSuffix
	if err := database.ValidateIdentifier(indexName); err != nil {
		return "", err
	}

	quoted := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		if err := database.ValidateIdentifier(col); err != nil {
			return "", err
		}
		quoted = append(quoted, database.QuoteIdent(col))
	}
	if len(quoted) == 0 {
		return "", fmt.Errorf("index %s has no key columns", d.Name)
	}

	var kind strings.Builder
	if d.IsUnique {
		kind.WriteString("UNIQUE ")
	}
	if strings.EqualFold(d.TypeDesc, "CLUSTERED") {
		kind.WriteString("CLUSTERED ")
	}

	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		kind.String(),
		database.QuoteIdent(indexName),
		database.QuoteIdent(table),
		strings.Join(quoted, ", "),
	), nil
}

// Extractor reads index metadata from the target catalog
type Extractor struct {
	handler database.Handler
}

// NewExtractor creates a new metadata extractor over a target handler
func NewExtractor(handler database.Handler) *Extractor {
	return &Extractor{handler: handler}
}

// TableIndexes extracts the index definitions of a table.
func (e *Extractor) TableIndexes(ctx context.Context, table string) ([]IndexDefinition, error) {
	if err := database.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	rows, err := e.handler.Query(ctx, indexQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata for %s: %w", table, err)
	}

	defs := make([]IndexDefinition, 0, len(rows))
	for _, row := range rows {
		def := IndexDefinition{
			Name:     asString(row["index_name"]),
			TypeDesc: asString(row["type_desc"]),
			IsUnique: asBool(row["is_unique"]),
		}
		for _, col := range strings.Split(asString(row["columns"]), ",") {
			col = strings.TrimSpace(col)
			if col != "" {
				def.Columns = append(def.Columns, col)
			}
		}
		if def.Name != "" && len(def.Columns) > 0 {
			defs = append(defs, def)
		}
	}

	return defs, nil
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
