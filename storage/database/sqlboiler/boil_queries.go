package boiledrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/farafmb/klubhaus/core"
)

var dialect = drivers.Dialect{
	LQ: '"',
	RQ: '"',

	UseIndexPlaceholders: true,
	UseLastInsertID:      false,
	UseSchema:            false,
	UseDefaultKeyword:    true,
}

// newQuery initializes a new Query for the postgres dialect using the passed in QueryMods
func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// count returns the number of rows matched by mods.
func count(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (int, error) {
	q := newQuery(mods...)
	queries.SetSelect(q, nil)
	queries.SetCount(q)

	var cnt int64
	if err := q.QueryRowContext(ctx, exec).Scan(&cnt); err != nil {
		return 0, err
	}
	return int(cnt), nil
}

// update sets cols on the rows matched by mods.
func update(ctx context.Context, exec core.DBExecutor, cols map[string]interface{}, mods ...qm.QueryMod) (int, error) {
	q := newQuery(mods...)
	queries.SetUpdate(q, cols)

	res, err := q.ExecContext(ctx, exec)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// deleteAll deletes the rows matched by mods.
func deleteAll(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (int, error) {
	q := newQuery(mods...)
	queries.SetDelete(q)

	res, err := q.ExecContext(ctx, exec)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// insert inserts a row made of cols (column: value) into table.
func insert(ctx context.Context, exec core.DBExecutor, table string, cols []string, vals []interface{}) error {
	placeholders := make([]string, 0, len(cols))
	quoted := make([]string, 0, len(cols))
	for i, col := range cols {
		quoted = append(quoted, `"`+col+`"`)
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
	}
	query := "INSERT INTO " + table + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	_, err := queries.Raw(query, vals...).ExecContext(ctx, exec)
	return err
}

func orderBy(ordering []core.DBOrdering, dflt string) qm.QueryMod {
	if len(ordering) == 0 {
		return qm.OrderBy(dflt)
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return qm.OrderBy(strings.Join(orderList, ", "))
}

func stringsToInterfaces(ss []string) []interface{} {
	vals := make([]interface{}, 0, len(ss))
	for _, s := range ss {
		vals = append(vals, s)
	}
	return vals
}

// trapNoRowsErr maps "no rows" errors to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}
