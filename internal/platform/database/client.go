package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidModel = errors.New("invalid model or column name")
	ErrEmptyBatch   = errors.New("empty batch")
	ErrNoTenant     = errors.New("no tenant bound to data client")
)

var tracer = otel.Tracer("ot2net/database")

// Kind names a data operation.
type Kind string

const (
	FindMany   Kind = "findMany"
	FindFirst  Kind = "findFirst"
	FindUnique Kind = "findUnique"
	Count      Kind = "count"
	Aggregate  Kind = "aggregate"
	GroupBy    Kind = "groupBy"
	Create     Kind = "create"
	CreateMany Kind = "createMany"
	Update     Kind = "update"
	UpdateMany Kind = "updateMany"
	Delete     Kind = "delete"
	DeleteMany Kind = "deleteMany"
)

// IsRead reports whether k only reads rows.
func (k Kind) IsRead() bool {
	switch k {
	case FindMany, FindFirst, FindUnique, Count, Aggregate, GroupBy:
		return true
	}
	return false
}

// AggregateFunc is one aggregate column, rendered as FUNC(column) AS as.
type AggregateFunc struct {
	Func   string // COUNT, SUM, AVG, MIN or MAX
	Column string // column name or "*" for COUNT
	As     string
}

// Operation describes one data access against a model (table).
type Operation struct {
	Model string
	Kind  Kind

	// Where filters reads, updates and deletes. Nil matches every row.
	Where sq.Sqlizer

	// Data is the row for Create and the assignments for Update/UpdateMany.
	Data map[string]any
	// Batch holds the rows for CreateMany. Every row must have the same keys.
	Batch []map[string]any

	// Columns projects reads; empty selects every column.
	Columns    []string
	Aggregates []AggregateFunc
	GroupBy    []string
	OrderBy    []string // "column" or "column ASC|DESC"
	Limit      uint64
	Offset     uint64
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result carries the rows an operation produced or touched.
type Result struct {
	Rows     []Row
	Affected int64
	Count    int64
}

// First returns the first row or nil.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Client executes data operations. Implementations must be safe for
// concurrent use.
type Client interface {
	Do(ctx context.Context, op Operation) (*Result, error)
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	identRE     = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	aggregateOK = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}
)

// SQLClient runs operations against Postgres, building statements with
// squirrel.
type SQLClient struct {
	db DBTX
}

// NewSQLClient creates a client over db.
func NewSQLClient(db DBTX) *SQLClient {
	return &SQLClient{db: db}
}

// Do implements Client.
func (c *SQLClient) Do(ctx context.Context, op Operation) (*Result, error) {
	ctx, span := tracer.Start(ctx, "db."+string(op.Kind),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.sql.table", op.Model),
		),
	)
	defer span.End()

	res, err := c.do(ctx, op)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (c *SQLClient) do(ctx context.Context, op Operation) (*Result, error) {
	if err := validateNames(op); err != nil {
		return nil, err
	}

	switch op.Kind {
	case FindMany:
		return c.query(ctx, op, c.selectBuilder(op))
	case FindFirst, FindUnique:
		op.Limit = 1
		return c.queryOne(ctx, op, c.selectBuilder(op))
	case Count:
		b := psql.Select("COUNT(*) AS count").From(op.Model)
		res, err := c.query(ctx, op, where(b, op.Where))
		if err != nil {
			return nil, err
		}
		res.Count = toInt64(res.First()["count"])
		return res, nil
	case Aggregate, GroupBy:
		return c.aggregate(ctx, op)
	case Create:
		return c.create(ctx, op)
	case CreateMany:
		return c.createMany(ctx, op)
	case Update, UpdateMany:
		return c.update(ctx, op)
	case Delete:
		b := psql.Delete(op.Model).Suffix("RETURNING *")
		if op.Where != nil {
			b = b.Where(op.Where)
		}
		return c.queryOne(ctx, op, b)
	case DeleteMany:
		b := psql.Delete(op.Model)
		if op.Where != nil {
			b = b.Where(op.Where)
		}
		return c.exec(ctx, op, b)
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Kind)
	}
}

func (c *SQLClient) selectBuilder(op Operation) sq.SelectBuilder {
	cols := op.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b := where(psql.Select(cols...).From(op.Model), op.Where)
	if len(op.OrderBy) > 0 {
		b = b.OrderBy(op.OrderBy...)
	}
	if op.Limit > 0 {
		b = b.Limit(op.Limit)
	}
	if op.Offset > 0 {
		b = b.Offset(op.Offset)
	}
	return b
}

func (c *SQLClient) aggregate(ctx context.Context, op Operation) (*Result, error) {
	if len(op.Aggregates) == 0 && op.Kind == Aggregate {
		return nil, fmt.Errorf("%s on %s: no aggregates", op.Kind, op.Model)
	}
	if len(op.GroupBy) == 0 && op.Kind == GroupBy {
		return nil, fmt.Errorf("%s on %s: no group columns", op.Kind, op.Model)
	}

	cols := slices.Clone(op.GroupBy)
	for _, a := range op.Aggregates {
		fn := strings.ToUpper(a.Func)
		if !aggregateOK[fn] || !identRE.MatchString(a.As) ||
			(a.Column != "*" && !identRE.MatchString(a.Column)) || (a.Column == "*" && fn != "COUNT") {
			return nil, fmt.Errorf("%w: aggregate %s(%s) AS %s", ErrInvalidModel, a.Func, a.Column, a.As)
		}
		cols = append(cols, fmt.Sprintf("%s(%s) AS %s", fn, a.Column, a.As))
	}

	b := where(psql.Select(cols...).From(op.Model), op.Where)
	if len(op.GroupBy) > 0 {
		b = b.GroupBy(op.GroupBy...)
	}
	if len(op.OrderBy) > 0 {
		b = b.OrderBy(op.OrderBy...)
	}
	return c.query(ctx, op, b)
}

func (c *SQLClient) create(ctx context.Context, op Operation) (*Result, error) {
	if len(op.Data) == 0 {
		return nil, fmt.Errorf("%s on %s: no data", op.Kind, op.Model)
	}
	cols := sortedKeys(op.Data)
	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = op.Data[col]
	}
	b := psql.Insert(op.Model).Columns(cols...).Values(vals...).Suffix("RETURNING *")
	return c.queryOne(ctx, op, b)
}

func (c *SQLClient) createMany(ctx context.Context, op Operation) (*Result, error) {
	if len(op.Batch) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, ErrEmptyBatch)
	}
	cols := sortedKeys(op.Batch[0])
	b := psql.Insert(op.Model).Columns(cols...)
	for i, row := range op.Batch {
		if !slices.Equal(sortedKeys(row), cols) {
			return nil, fmt.Errorf("%s on %s: row %d has different columns than row 0", op.Kind, op.Model, i)
		}
		vals := make([]any, len(cols))
		for j, col := range cols {
			vals[j] = row[col]
		}
		b = b.Values(vals...)
	}
	return c.exec(ctx, op, b)
}

func (c *SQLClient) update(ctx context.Context, op Operation) (*Result, error) {
	if len(op.Data) == 0 {
		return nil, fmt.Errorf("%s on %s: no data", op.Kind, op.Model)
	}
	b := psql.Update(op.Model).SetMap(op.Data)
	if op.Where != nil {
		b = b.Where(op.Where)
	}
	if op.Kind == UpdateMany {
		return c.exec(ctx, op, b)
	}
	return c.queryOne(ctx, op, b.Suffix("RETURNING *"))
}

func (c *SQLClient) queryOne(ctx context.Context, op Operation, b sq.Sqlizer) (*Result, error) {
	res, err := c.query(ctx, op, b)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, ErrNotFound)
	}
	return res, nil
}

func (c *SQLClient) query(ctx context.Context, op Operation, b sq.Sqlizer) (*Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s on %s: %w", op.Kind, op.Model, err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, err)
	}
	return &Result{Rows: out, Affected: int64(len(out))}, nil
}

func (c *SQLClient) exec(ctx context.Context, op Operation, b sq.Sqlizer) (*Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s on %s: %w", op.Kind, op.Model, err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", op.Kind, op.Model, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s on %s: rows affected: %w", op.Kind, op.Model, err)
	}
	return &Result{Affected: n}, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// validateNames rejects identifiers that would be spliced into SQL unquoted.
func validateNames(op Operation) error {
	if !identRE.MatchString(op.Model) {
		return fmt.Errorf("%w: model %q", ErrInvalidModel, op.Model)
	}
	names := slices.Concat(op.Columns, op.GroupBy, sortedKeys(op.Data))
	for _, row := range op.Batch {
		names = append(names, sortedKeys(row)...)
	}
	for _, o := range op.OrderBy {
		fields := strings.Fields(o)
		if len(fields) == 0 || len(fields) > 2 ||
			(len(fields) == 2 && !strings.EqualFold(fields[1], "ASC") && !strings.EqualFold(fields[1], "DESC")) {
			return fmt.Errorf("%w: order %q", ErrInvalidModel, o)
		}
		names = append(names, fields[0])
	}
	for _, name := range names {
		if !identRE.MatchString(name) {
			return fmt.Errorf("%w: column %q", ErrInvalidModel, name)
		}
	}
	return nil
}

func where(b sq.SelectBuilder, pred sq.Sqlizer) sq.SelectBuilder {
	if pred == nil {
		return b
	}
	return b.Where(pred)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
