package source

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// LoadPostgres reads a table or query result. The URI is a regular pgx
// connection string carrying one extra parameter, table=<name> or
// query=<sql>, which is removed before connecting.
func (l *Loader) LoadPostgres(ctx context.Context, uri string) (*dataset.Dataset, error) {
	connString, query, err := splitPostgresURI(uri)
	if err != nil {
		return nil, err
	}
	if l.maxRows > 0 {
		query = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", query, l.maxRows)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid PostgreSQL connection string")
	}
	poolConfig.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to run source query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	var records [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read row")
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read rows")
	}

	ds, err := FromRows(names, records)
	if err != nil {
		return nil, err
	}
	l.logger.Info("dataset loaded from PostgreSQL", zap.Int("rows", ds.NumRows()), zap.Int("columns", ds.NumColumns()))
	return ds, nil
}

func splitPostgresURI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid PostgreSQL URI")
	}
	q := u.Query()
	table, query := q.Get("table"), q.Get("query")
	q.Del("table")
	q.Del("query")
	u.RawQuery = q.Encode()

	switch {
	case query != "":
		return u.String(), query, nil
	case table != "":
		return u.String(), "SELECT * FROM " + pgx.Identifier(splitIdent(table)).Sanitize(), nil
	default:
		return "", "", errors.New(errors.ErrorTypeConfig, "PostgreSQL source needs a table or query parameter")
	}
}

func splitIdent(name string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	return append(parts, name[start:])
}

// FromRows builds a dataset from database values. Each column's type is
// taken from its first non-nil value; values that do not fit are an error.
func FromRows(names []string, records [][]any) (*dataset.Dataset, error) {
	columns := make([]*dataset.Column, len(names))
	for j, name := range names {
		values := make([]any, len(records))
		var typ dataset.Type
		for i, rec := range records {
			v, t := fromSQL(rec[j])
			values[i] = v
			if typ == "" && v != nil {
				typ = t
			}
		}
		if typ == "" {
			typ = dataset.Float
		}
		if typ == dataset.Float {
			for i, v := range values {
				if n, ok := v.(int64); ok {
					values[i] = float64(n)
				}
			}
		}
		col, err := dataset.NewColumn(name, typ, values)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeParse, "column has mixed value types").WithDetail("column", name)
		}
		columns[j] = col
	}
	return dataset.New(columns...)
}

func fromSQL(v any) (any, dataset.Type) {
	switch x := v.(type) {
	case nil:
		return nil, ""
	case int64:
		return x, dataset.Integer
	case int32:
		return int64(x), dataset.Integer
	case int16:
		return int64(x), dataset.Integer
	case int8:
		return int64(x), dataset.Integer
	case float64:
		return x, dataset.Float
	case float32:
		return float64(x), dataset.Float
	case bool:
		return x, dataset.Boolean
	case string:
		return x, dataset.String
	case time.Time:
		return x.UTC(), dataset.Datetime
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil, ""
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil, ""
		}
		return f.Float64, dataset.Float
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, dataset.Float
	case []byte:
		return string(x), dataset.String
	case fmt.Stringer:
		return x.String(), dataset.String
	default:
		return fmt.Sprint(x), dataset.String
	}
}
