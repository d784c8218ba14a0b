// Package command defines the pre-parsed statement tree the engine executes.
// Turning SQL text into a Command is outside this module's scope; every
// entrypoint here accepts an already-built Command value.
package command

import "github.com/skepadb/skepadb/internal/value"

// Kind discriminates the statement carried by a Command.
type Kind int

const (
	KindBegin Kind = iota
	KindCommit
	KindRollback
	KindCreateTable
	KindCreateIndex
	KindDropIndex
	KindAlterTable
	KindInsert
	KindUpdate
	KindDelete
	KindSelect
)

// CompareOp names a predicate's comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpGt
	OpLt
	OpGte
	OpLte
	OpLike
	OpIn
	OpIsNull
	OpIsNotNull
)

// PredicateValue is the right-hand operand of a predicate. Exactly one of
// Scalar/List is meaningful, selected by Kind; IsNull/IsNotNull predicates
// carry neither. Modeling this as a small sum type avoids embedding an
// in-band list separator inside a single string operand.
type PredicateValueKind int

const (
	PredicateValueNone PredicateValueKind = iota
	PredicateValueScalar
	PredicateValueList
)

type PredicateValue struct {
	Kind   PredicateValueKind
	Scalar string
	List   []string
}

func ScalarOperand(s string) PredicateValue {
	return PredicateValue{Kind: PredicateValueScalar, Scalar: s}
}

func ListOperand(items []string) PredicateValue {
	return PredicateValue{Kind: PredicateValueList, List: items}
}

// WhereClause is the predicate tree of a WHERE clause: either a leaf
// predicate over one column, or a Binary node joining two subtrees with
// logical AND/OR.
type WhereKind int

const (
	WhereLeaf WhereKind = iota
	WhereBinary
)

type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
)

type WhereClause struct {
	Kind WhereKind

	// WhereLeaf fields.
	Column string
	Op     CompareOp
	Value  PredicateValue

	// WhereBinary fields.
	Left    *WhereClause
	BoolOp  BoolOp
	Right   *WhereClause
}

func Predicate(column string, op CompareOp, val PredicateValue) *WhereClause {
	return &WhereClause{Kind: WhereLeaf, Column: column, Op: op, Value: val}
}

func Binary(left *WhereClause, op BoolOp, right *WhereClause) *WhereClause {
	return &WhereClause{Kind: WhereBinary, Left: left, BoolOp: op, Right: right}
}

// ColumnDef describes one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name       string
	Type       value.DataType
	PrimaryKey bool
	Unique     bool
	NotNull    bool
}

// ForeignKeyAction names the referential action taken on the child rows of
// a foreign key when the referenced parent row is deleted or updated.
type ForeignKeyAction int

const (
	ActionRestrict ForeignKeyAction = iota
	ActionCascade
	ActionSetNull
	ActionNoAction
)

// ForeignKeyDef describes a table-level FOREIGN KEY constraint.
type ForeignKeyDef struct {
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   ForeignKeyAction
	OnUpdate   ForeignKeyAction
}

// CreateTable is the payload of a KindCreateTable Command.
type CreateTable struct {
	Table             string
	Columns           []ColumnDef
	PrimaryKey        []string
	UniqueConstraints [][]string
	ForeignKeys       []ForeignKeyDef
}

// CreateIndex / DropIndex are the payloads of their respective Commands.
type CreateIndex struct {
	Table   string
	Columns []string
}

type DropIndex struct {
	Table   string
	Columns []string
}

// AlterAction discriminates the kind of ALTER TABLE change requested.
type AlterActionKind int

const (
	AlterAddUnique AlterActionKind = iota
	AlterDropUnique
	AlterAddForeignKey
	AlterDropForeignKey
	AlterSetNotNull
	AlterDropNotNull
)

type AlterAction struct {
	Kind       AlterActionKind
	Columns    []string // AddUnique/DropUnique/SetNotNull/DropNotNull (SetNotNull/DropNotNull use Columns[0])
	ForeignKey ForeignKeyDef // AddForeignKey
}

type AlterTable struct {
	Table  string
	Action AlterAction
}

// Insert is the payload of a KindInsert Command.
type Insert struct {
	Table   string
	Columns []string // empty means "all columns, in schema order"
	Values  []string
}

// Assignment is one "column = value" pair in a SET clause.
type Assignment struct {
	Column string
	Value  string
}

type Update struct {
	Table       string
	Assignments []Assignment
	Where       *WhereClause
}

type Delete struct {
	Table string
	Where *WhereClause
}

// JoinType names the SQL join kind.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
)

type JoinClause struct {
	Table       string
	Type        JoinType
	LeftColumn  string
	RightColumn string
}

// OrderByItem sorts the result by one column; ties are broken by the next
// item in Select.OrderBy.
type OrderByItem struct {
	Column string
	Asc    bool
}

// SelectItem is one projected expression: either a bare/aliased column, or
// an aggregate function call.
type AggregateFn int

const (
	AggNone AggregateFn = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

type SelectItem struct {
	// Plain column projection.
	Column string
	Alias  string

	// Aggregate projection (Aggregate != AggNone).
	Aggregate   AggregateFn
	Arg         string // column name, or "*" for count(*)
	Distinct    bool
}

type Select struct {
	Table      string
	Join       *JoinClause
	Columns    []SelectItem // nil/empty means "SELECT *"
	Where      *WhereClause
	GroupBy    []string
	Having     *WhereClause
	OrderBy    []OrderByItem
	Distinct   bool
	Limit      *int
	Offset     *int
}

// Command is the top-level statement tree. Exactly one payload field is
// populated, selected by Kind.
type Command struct {
	Kind Kind

	CreateTable CreateTable
	CreateIndex CreateIndex
	DropIndex   DropIndex
	AlterTable  AlterTable
	Insert      Insert
	Update      Update
	Delete      Delete
	Select      Select
}

// TableName returns the table a DDL/DML/query Command targets, or "" for
// transaction-control commands.
func (c Command) TableName() string {
	switch c.Kind {
	case KindCreateTable:
		return c.CreateTable.Table
	case KindCreateIndex:
		return c.CreateIndex.Table
	case KindDropIndex:
		return c.DropIndex.Table
	case KindAlterTable:
		return c.AlterTable.Table
	case KindInsert:
		return c.Insert.Table
	case KindUpdate:
		return c.Update.Table
	case KindDelete:
		return c.Delete.Table
	case KindSelect:
		return c.Select.Table
	default:
		return ""
	}
}

// IsDDL reports whether the command is schema-mutating DDL, which is always
// auto-commit and never permitted inside an active transaction.
func (c Command) IsDDL() bool {
	switch c.Kind {
	case KindCreateTable, KindCreateIndex, KindDropIndex, KindAlterTable:
		return true
	default:
		return false
	}
}

// IsWrite reports whether the command mutates row data and therefore needs a
// WAL record when run outside an explicit transaction.
func (c Command) IsWrite() bool {
	switch c.Kind {
	case KindInsert, KindUpdate, KindDelete:
		return true
	default:
		return false
	}
}
