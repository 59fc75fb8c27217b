package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x Int64);

-- second
CREATE TABLE b (y String);
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int64)", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String)", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s';`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b';`))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for _, tc := range []struct {
		dir  string
		want int
	}{
		{"postgres", 2},
		{"clickhouse", 1},
		{"sqlite", 1},
	} {
		var files []string
		var err error
		switch tc.dir {
		case "postgres":
			files, _, err = readOrdered(PostgresFS, tc.dir)
		case "clickhouse":
			files, _, err = readOrdered(ClickhouseFS, tc.dir)
		case "sqlite":
			files, _, err = readOrdered(SqliteFS, tc.dir)
		}
		require.NoError(t, err, tc.dir)
		assert.Len(t, files, tc.want, tc.dir)
	}
}
