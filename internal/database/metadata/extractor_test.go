package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	rows    []map[string]interface{}
	err     error
	queries []string
}

func (s *stubHandler) Query(_ context.Context, query string, _ ...interface{}) ([]map[string]interface{}, error) {
	s.queries = append(s.queries, query)
	return s.rows, s.err
}

func (s *stubHandler) QueryRows(context.Context, string, ...interface{}) ([]string, [][]interface{}, error) {
	return nil, nil, nil
}
func (s *stubHandler) Exec(context.Context, string, ...interface{}) (int64, error) { return 0, nil }
func (s *stubHandler) ExecTx(context.Context, []string) error                      { return nil }
func (s *stubHandler) Scalar(context.Context, string, ...interface{}) (interface{}, error) {
	return nil, nil
}
func (s *stubHandler) MaxValue(context.Context, string, string) (interface{}, error) {
	return nil, nil
}
func (s *stubHandler) Count(context.Context, string) (int64, error) { return 0, nil }
func (s *stubHandler) Truncate(context.Context, string) error       { return nil }
func (s *stubHandler) BulkCopy(_ context.Context, _ string, _ []string, rows [][]interface{}) (int64, error) {
	return int64(len(rows)), nil
}

func TestTableIndexesParsesCatalogRows(t *testing.T) {
	stub := &stubHandler{
		rows: []map[string]interface{}{
			{
				"index_name": "pk_trades",
				"type_desc":  "CLUSTERED",
				"is_unique":  true,
				"columns":    "trade_date, trade_id",
			},
			{
				"index_name": "ix_trades_account",
				"type_desc":  "NONCLUSTERED",
				"is_unique":  int64(0),
				"columns":    "account_id",
			},
		},
	}

	defs, err := NewExtractor(stub).TableIndexes(context.Background(), "trades")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "pk_trades", defs[0].Name)
	assert.True(t, defs[0].IsUnique)
	assert.Equal(t, []string{"trade_date", "trade_id"}, defs[0].Columns)

	assert.Equal(t, "ix_trades_account", defs[1].Name)
	assert.False(t, defs[1].IsUnique)
	assert.Equal(t, []string{"account_id"}, defs[1].Columns)
}

func TestTableIndexesSkipsUnusableRows(t *testing.T) {
	stub := &stubHandler{
		rows: []map[string]interface{}{
			{"index_name": "", "type_desc": "HEAP", "is_unique": false, "columns": ""},
			{"index_name": "ix_ok", "type_desc": "NONCLUSTERED", "is_unique": false, "columns": "a"},
		},
	}

	defs, err := NewExtractor(stub).TableIndexes(context.Background(), "trades")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "ix_ok", defs[0].Name)
}

func TestTableIndexesRejectsBadTableName(t *testing.T) {
	_, err := NewExtractor(&stubHandler{}).TableIndexes(context.Background(), "trades; DROP TABLE x")
	require.Error(t, err)
}

func TestCreateDDLShapes(t *testing.T) {
	tests := []struct {
		name string
		def  IndexDefinition
		want string
	}{
		{
			name: "plain nonclustered",
			def: IndexDefinition{
				Name: "ix_trades_account", TypeDesc: "NONCLUSTERED",
				Columns: []string{"account_id"},
			},
			want: "CREATE INDEX [ix_trades_account_staging] ON [trades_staging] ([account_id])",
		},
		{
			name: "unique clustered multi column",
			def: IndexDefinition{
				Name: "pk_trades", TypeDesc: "CLUSTERED", IsUnique: true,
				Columns: []string{"trade_date", "trade_id"},
			},
			want: "CREATE UNIQUE CLUSTERED INDEX [pk_trades_staging] ON [trades_staging] ([trade_date], [trade_id])",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.CreateDDL("trades_staging", "_staging")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateDDLRejectsInvalidNames(t *testing.T) {
	def := IndexDefinition{Name: "ix_ok", TypeDesc: "NONCLUSTERED", Columns: []string{"a b"}}
	_, err := def.CreateDDL("trades_staging", "_staging")
	require.Error(t, err)

	def = IndexDefinition{Name: "ix_ok", TypeDesc: "NONCLUSTERED"}
	_, err = def.CreateDDL("trades_staging", "_staging")
	require.Error(t, err)
}
