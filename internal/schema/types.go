package schema

// Table kinds as reported by the catalogs
const (
	KindBaseTable = "BASE TABLE"
	KindView      = "VIEW"
)

// Constraint types shared by every dialect
const (
	ConstraintPrimaryKey = "PRIMARY KEY"
	ConstraintForeignKey = "FOREIGN KEY"
	ConstraintUnique     = "UNIQUE"
	ConstraintCheck      = "CHECK"
)

// TableRef identifies a table or view within a schema
type TableRef struct {
	Schema string `json:"schema" yaml:"schema"`
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
}

// ColumnInfo represents a table column
type ColumnInfo struct {
	Name            string  `json:"name" yaml:"name"`
	DataType        string  `json:"data_type" yaml:"data_type"`
	MaxLength       *int64  `json:"max_length" yaml:"max_length"`
	Nullable        bool    `json:"nullable" yaml:"nullable"`
	Default         *string `json:"default" yaml:"default"`
	OrdinalPosition int     `json:"ordinal_position" yaml:"ordinal_position"`
}

// ConstraintInfo represents one column of a table constraint.
// The Referenced* fields are only set for foreign keys.
type ConstraintInfo struct {
	Name             string  `json:"constraint_name" yaml:"constraint_name"`
	Type             string  `json:"constraint_type" yaml:"constraint_type"`
	ColumnName       *string `json:"column_name" yaml:"column_name"`
	ReferencedSchema *string `json:"referenced_schema" yaml:"referenced_schema"`
	ReferencedTable  *string `json:"referenced_table" yaml:"referenced_table"`
	ReferencedColumn *string `json:"referenced_column" yaml:"referenced_column"`
}

// IndexInfo represents a database index. Definition is rendered by the dialect
// and is not parsed.
type IndexInfo struct {
	Name       string `json:"index_name" yaml:"index_name"`
	Definition string `json:"definition" yaml:"definition"`
}

// ColumnRef points at a column of a table, used as input to relationship inference
type ColumnRef struct {
	Table    string `json:"table" yaml:"table"`
	Column   string `json:"column" yaml:"column"`
	DataType string `json:"data_type" yaml:"data_type"`
}

// ForeignKeyEdge is a relationship backed by a declared FOREIGN KEY constraint
type ForeignKeyEdge struct {
	Table          string `json:"table" yaml:"table"`
	Column         string `json:"column" yaml:"column"`
	ForeignTable   string `json:"foreign_table" yaml:"foreign_table"`
	ForeignColumn  string `json:"foreign_column" yaml:"foreign_column"`
	ConstraintName string `json:"constraint_name" yaml:"constraint_name"`
}

// Confidence grades an inferred relationship
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// InferredEdge is a relationship guessed from column naming. It is never
// backed by a constraint, and ToColumn is an assumption rather than a lookup.
type InferredEdge struct {
	FromTable  string     `json:"from_table" yaml:"from_table"`
	FromColumn string     `json:"from_column" yaml:"from_column"`
	ToTable    string     `json:"to_table" yaml:"to_table"`
	ToColumn   string     `json:"to_column" yaml:"to_column"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
}

// TableStat holds sizing information for a table. A nil field means the
// lookup failed or the catalog had no value.
type TableStat struct {
	Table    string  `json:"table" yaml:"table"`
	Size     *string `json:"size" yaml:"size"`
	RowCount *int64  `json:"row_count" yaml:"row_count"`
}

// TableStructure is the structural record of one table in a dump.
// LookupErrors maps a lookup name (columns, constraints, indexes, row_count,
// size) to the error that made it come back empty.
type TableStructure struct {
	Type         string            `json:"type" yaml:"type"`
	RowCount     *int64            `json:"row_count" yaml:"row_count"`
	Size         *string           `json:"size" yaml:"size"`
	Columns      []ColumnInfo      `json:"columns" yaml:"columns"`
	Constraints  []ConstraintInfo  `json:"constraints" yaml:"constraints"`
	Indexes      []IndexInfo       `json:"indexes" yaml:"indexes"`
	LookupErrors map[string]string `json:"lookup_errors,omitempty" yaml:"lookup_errors,omitempty"`
}

// StructureDump maps schema -> table -> structural record.
// Failures maps a schema to the error that aborted its contribution.
type StructureDump struct {
	Schemas  map[string]map[string]TableStructure
	Failures map[string]string
}

// RelationshipReport holds the per-schema relationship analysis
type RelationshipReport struct {
	ForeignKeys map[string][]ForeignKeyEdge
	Inferred    map[string][]InferredEdge
	Stats       map[string][]TableStat
	Failures    map[string]string
}
