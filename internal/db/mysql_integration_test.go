//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tordrt/schemamap/internal/db"
	"github.com/tordrt/schemamap/internal/schema"
)

const testSchemaMySQL = `
	CREATE TABLE users (
		id       INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		email    VARCHAR(100) NOT NULL
	);

	CREATE TABLE categories (
		id   INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL
	);

	CREATE TABLE posts (
		id          INT AUTO_INCREMENT PRIMARY KEY,
		user_id     INT NOT NULL,
		category_id INT,
		paid        TINYINT(1) NOT NULL DEFAULT 0,
		CONSTRAINT fk_posts_user FOREIGN KEY (user_id) REFERENCES users(id),
		INDEX idx_posts_category (category_id)
	);

	INSERT INTO users (username, email) VALUES
		('alice', 'alice@example.com'),
		('bob', 'bob@example.com');

	ANALYZE TABLE users, categories, posts;
`

func setupMySQL(t *testing.T) db.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("test"),
		tcmysql.WithPassword("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "multiStatements=true")
	require.NoError(t, err)

	seed, err := sql.Open("mysql", connStr)
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, testSchemaMySQL)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	provider, err := db.Open(ctx, db.ConnConfig{
		Type:     "mysql",
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		User:     "test",
		Password: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close(ctx) })

	return provider
}

func TestMySQL_Catalog(t *testing.T) {
	p := setupMySQL(t)
	ctx := context.Background()

	schemas, err := p.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"testdb"}, schemas)

	tables, err := p.ListTables(ctx, "testdb")
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, schema.TableRef{Schema: "testdb", Name: "categories", Kind: schema.KindBaseTable}, tables[0])

	columns, err := p.ListColumns(ctx, "testdb", "users")
	require.NoError(t, err)
	require.Len(t, columns, 3)
	assert.Equal(t, "varchar", columns[1].DataType)
	require.NotNil(t, columns[1].MaxLength)
	assert.Equal(t, int64(50), *columns[1].MaxLength)

	constraints, err := p.ListConstraints(ctx, "testdb", "posts")
	require.NoError(t, err)
	var fk *schema.ConstraintInfo
	for i := range constraints {
		if constraints[i].Type == schema.ConstraintForeignKey {
			fk = &constraints[i]
		}
	}
	require.NotNil(t, fk)
	assert.Equal(t, "fk_posts_user", fk.Name)
	assert.Equal(t, "users", *fk.ReferencedTable)
	assert.Equal(t, "id", *fk.ReferencedColumn)

	indexes, err := p.ListIndexes(ctx, "testdb", "posts")
	require.NoError(t, err)
	var found bool
	for _, idx := range indexes {
		if idx.Name == "idx_posts_category" {
			found = true
			assert.Equal(t, "INDEX idx_posts_category ON posts (category_id)", idx.Definition)
		}
	}
	assert.True(t, found)

	_, err = p.RowCount(ctx, "testdb", "users")
	require.NoError(t, err)

	size, err := p.TableSize(ctx, "testdb", "users")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(size, " MB"), size)
}

func TestMySQL_Relationships(t *testing.T) {
	p := setupMySQL(t)
	ctx := context.Background()

	edges, err := p.ListForeignKeys(ctx, "testdb")
	require.NoError(t, err)
	assert.Equal(t, []schema.ForeignKeyEdge{{
		Table:          "posts",
		Column:         "user_id",
		ForeignTable:   "users",
		ForeignColumn:  "id",
		ConstraintName: "fk_posts_user",
	}}, edges)

	columns, err := p.ListKeyColumns(ctx, "testdb")
	require.NoError(t, err)
	assert.Equal(t, []schema.ColumnRef{
		{Table: "posts", Column: "category_id", DataType: "int"},
		{Table: "posts", Column: "user_id", DataType: "int"},
	}, columns)
}
