package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemamap/internal/db"
)

func TestParseTableList(t *testing.T) {
	tests := []struct {
		name       string
		tablesStr  string
		wantTables []string
	}{
		{
			name:       "single table",
			tablesStr:  "users",
			wantTables: []string{"users"},
		},
		{
			name:       "multiple tables",
			tablesStr:  "users,posts,comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "tables with spaces",
			tablesStr:  "users, posts, comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "empty entries",
			tablesStr:  "users,,posts,",
			wantTables: []string{"users", "posts"},
		},
		{
			name:       "empty string",
			tablesStr:  "",
			wantTables: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTables := parseTableList(tt.tablesStr)

			if len(gotTables) != len(tt.wantTables) {
				t.Errorf("parseTableList() returned %d tables, want %d", len(gotTables), len(tt.wantTables))
				return
			}

			for i, table := range gotTables {
				if table != tt.wantTables[i] {
					t.Errorf("parseTableList() table[%d] = %s, want %s", i, table, tt.wantTables[i])
				}
			}
		})
	}
}

func TestOverrides(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"structure"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--format", "xml", "--ignore", "a, b", "--otel"}))

	f := &cliFlags{}
	// the flags are bound to the closure's cliFlags; read them back through the flag set
	f.format, _ = cmd.Flags().GetString("format")
	f.ignore, _ = cmd.Flags().GetString("ignore")
	f.otel, _ = cmd.Flags().GetBool("otel")

	o := f.overrides(cmd)
	require.NotNil(t, o.Format)
	assert.Equal(t, "xml", *o.Format)
	assert.Nil(t, o.OutputDir)
	assert.Nil(t, o.Schema)
	assert.Nil(t, o.LogLevel)
	assert.Equal(t, []string{"a", "b"}, o.Ignore)
	assert.True(t, o.OTelEnabled)
}

func TestResolveConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())

	root := newRootCmd()
	cmd, _, err := root.Find([]string{"relationships"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(nil))

	f := &cliFlags{configPath: "config.json"}
	// a missing default file is skipped
	assert.Equal(t, "", f.resolveConfigPath(cmd))

	require.NoError(t, os.WriteFile("config.json", []byte("{}"), 0o600))
	assert.Equal(t, "config.json", f.resolveConfigPath(cmd))

	require.NoError(t, cmd.ParseFlags([]string{"--config", "other.yaml"}))
	f.configPath = "other.yaml"
	assert.Equal(t, "other.yaml", f.resolveConfigPath(cmd))
}

const shopDDL = `
	CREATE TABLE customer (id INTEGER PRIMARY KEY, name TEXT);
	CREATE TABLE orders (
		id          INTEGER PRIMARY KEY,
		customer_id INTEGER REFERENCES customer(id)
	);
	CREATE TABLE order_items (id INTEGER PRIMARY KEY, order_id INTEGER);
	CREATE TABLE sessions (id INTEGER PRIMARY KEY, customer_id INTEGER);
	INSERT INTO customer (name) VALUES ('ada');
`

// setupWorkspace creates a SQLite file and a config pointing at it inside a
// fresh working directory, with the environment cleared
func setupWorkspace(t *testing.T) string {
	t.Helper()

	for _, k := range []string{
		"SCHEMAMAP_DB_TYPE", "SCHEMAMAP_DB_HOST", "SCHEMAMAP_DB_PORT", "SCHEMAMAP_DB_NAME",
		"SCHEMAMAP_DB_USER", "SCHEMAMAP_DB_PASSWORD", "SCHEMAMAP_DB_SCHEMA", "SCHEMAMAP_DB_TIMEOUT",
		"SCHEMAMAP_OUTPUT_FORMAT", "SCHEMAMAP_OUTPUT_DIR", "SCHEMAMAP_IGNORED_TABLES",
		"LOG_LEVEL", "OTEL_ENABLED",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	t.Chdir(dir)

	client, err := db.NewSQLiteClient(t.Context(), filepath.Join(dir, "shop.db"))
	require.NoError(t, err)
	_, err = client.GetDB().ExecContext(t.Context(), shopDDL)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	cfg := `{
  "database": {"type": "sqlite", "database": "shop.db"},
  "output": {"directory": "out"},
  "options": {"ignored_tables": ["sessions"]}
}`
	require.NoError(t, os.WriteFile("config.json", []byte(cfg), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func TestRelationshipsCommand(t *testing.T) {
	dir := setupWorkspace(t)

	stdout, stderr, err := execute(t, "relationships", "--log-level", "debug")
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "SCHEMA main: 1 foreign keys, 2 inferred (1 high), 3 tables with stats")
	assert.Contains(t, stdout, filepath.Join("out", "db_relationships_inferred.json"))
	assert.Contains(t, stderr, "database connected")

	for _, name := range []string{"db_relationships.json", "db_relationships_inferred.json", "db_stats.json"} {
		data, err := os.ReadFile(filepath.Join(dir, "out", name))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "{\n  \"main\": ["), name)
		assert.NotContains(t, string(data), "sessions", name)
	}
}

func TestStructureCommand_XML(t *testing.T) {
	dir := setupWorkspace(t)

	stdout, stderr, err := execute(t, "structure", "--format", "xml", "--output-dir", "xml-out", "--ignore", "order_items", "--quiet")
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout)

	file, err := os.Open(filepath.Join(dir, "xml-out", "db_structure.xml"))
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	doc, err := xmlquery.Parse(file)
	require.NoError(t, err)

	assert.NotNil(t, xmlquery.FindOne(doc, "/database/main/orders"))
	assert.Nil(t, xmlquery.FindOne(doc, "/database/main/order_items"))
	assert.Nil(t, xmlquery.FindOne(doc, "/database/main/sessions"))

	columns := xmlquery.Find(doc, "/database/main/orders/columns/item/name")
	require.Len(t, columns, 2)
	assert.Equal(t, "customer_id", columns[1].InnerText())
}

func TestStructureCommand_UnknownFormatFallsBack(t *testing.T) {
	dir := setupWorkspace(t)

	_, stderr, err := execute(t, "structure", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, stderr, "unknown output format")

	_, err = os.Stat(filepath.Join(dir, "out", "db_structure.json"))
	assert.NoError(t, err)
}

func TestCommand_ConfigErrors(t *testing.T) {
	setupWorkspace(t)

	_, _, err := execute(t, "structure", "--config", "missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")

	t.Setenv("SCHEMAMAP_DB_TYPE", "oracle")
	_, _, err = execute(t, "relationships")
	assert.ErrorIs(t, err, db.ErrUnsupportedDatabase)
}

func TestCommand_SchemaNotFound(t *testing.T) {
	setupWorkspace(t)

	_, _, err := execute(t, "relationships", "--schema", "archive")
	assert.ErrorIs(t, err, db.ErrSchemaNotFound)
}
