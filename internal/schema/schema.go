// Package schema holds the static catalog of tables/collections that scan results are
// written to. The catalog is read-only and shared by every backend driver.
package schema

// Kind is the logical type of a field. Dialects map kinds to concrete column types.
type Kind int

const (
	KindKey      Kind = iota // primary identifier
	KindRef                  // identifier of a row in another table
	KindString               // short text
	KindText                 // free text
	KindLongText             // large opaque text (payloads)
	KindUint                 // non-negative integer
	KindBool
	KindFloat
	KindTime
)

// Field is a single column of a table.
type Field struct {
	Name string
	Kind Kind
	// References names the parent table when Kind == KindRef.
	References string
}

// Table is one persisted table (relational) or collection (document).
type Table struct {
	Name   string
	Fields []Field
}

// Columns returns the field names in declaration order.
func (t Table) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Table names.
const (
	FlowsTable   = "flows"
	ReviewsTable = "reviews"
)

var flows = Table{
	Name: FlowsTable,
	Fields: []Field{
		{Name: "id", Kind: KindKey},
		{Name: "userId", Kind: KindString},
		{Name: "categoryId", Kind: KindString},
		{Name: "title", Kind: KindString},
		{Name: "description", Kind: KindText},
		{Name: "downloads", Kind: KindUint},
		{Name: "featured", Kind: KindBool},
		{Name: "created", Kind: KindTime},
		{Name: "modified", Kind: KindTime},
		{Name: "uploadVersion", Kind: KindString},
		{Name: "dataVersion", Kind: KindString},
		{Name: "payload", Kind: KindLongText},
	},
}

var reviews = Table{
	Name: ReviewsTable,
	Fields: []Field{
		{Name: "id", Kind: KindKey},
		{Name: "userId", Kind: KindString},
		{Name: "flowId", Kind: KindRef, References: FlowsTable},
		{Name: "comment", Kind: KindText},
		{Name: "rating", Kind: KindFloat},
		{Name: "created", Kind: KindTime},
		{Name: "modified", Kind: KindTime},
	},
}

// Flows returns the catalog entry for the flows table.
func Flows() Table { return flows }

// Reviews returns the catalog entry for the reviews table.
func Reviews() Table { return reviews }

// Tables returns every catalog table, parents before children.
// Drop in reverse order.
func Tables() []Table {
	return []Table{flows, reviews}
}
