// Package bigquery implements the repository executor on BigQuery using
// positional query parameters.
package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-reconciler/internal/query"
	"github.com/dvloznov/finance-reconciler/internal/repository"
)

// Executor runs statements against one BigQuery dataset.
type Executor struct {
	client  *bigquery.Client
	dataset string
}

// Open creates a client for the project. Tables are qualified with dataset.
func Open(ctx context.Context, projectID, dataset string) (*Executor, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.Open: creating client: %w", err)
	}
	return &Executor{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (e *Executor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Dataset returns the dataset tables are qualified with.
func (e *Executor) Dataset() string { return e.dataset }

// Dialect implements repository.Executor.
func (e *Executor) Dialect() query.Dialect { return query.BigQuery(e.dataset) }

func (e *Executor) newQuery(stmt string, args []any) *bigquery.Query {
	q := e.client.Query(stmt)
	if len(args) > 0 {
		q.Parameters = make([]bigquery.QueryParameter, len(args))
		for i, a := range args {
			q.Parameters[i] = bigquery.QueryParameter{Value: bindArg(a)}
		}
	}
	return q
}

// Query implements repository.Executor.
func (e *Executor) Query(ctx context.Context, stmt string, args []any) ([]repository.Row, error) {
	it, err := e.newQuery(stmt, args).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery.Query: query read: %w", err)
	}

	var out []repository.Row
	for {
		var vals map[string]bigquery.Value
		err := it.Next(&vals)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery.Query: iter next: %w", err)
		}
		row := make(repository.Row, len(vals))
		for k, v := range vals {
			nv, err := normalize(v)
			if err != nil {
				return nil, fmt.Errorf("bigquery.Query: column %s: %w", k, err)
			}
			row[k] = nv
		}
		out = append(out, row)
	}
	return out, nil
}

// Exec implements repository.Executor. The affected row count comes from
// the DML job statistics.
func (e *Executor) Exec(ctx context.Context, stmt string, args []any) (int64, error) {
	job, err := e.newQuery(stmt, args).Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery.Exec: running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery.Exec: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("bigquery.Exec: job error: %w", err)
	}
	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// ExecScript runs a multi-statement script, used for migrations.
func (e *Executor) ExecScript(ctx context.Context, script string) error {
	if _, err := e.Exec(ctx, script, nil); err != nil {
		return fmt.Errorf("bigquery.ExecScript: %w", err)
	}
	return nil
}

// bindArg converts values to types BigQuery can infer a parameter type from.
// NULLs need a typed null so the column type still matches.
func bindArg(a any) any {
	switch v := a.(type) {
	case nil:
		return bigquery.NullString{}
	case decimal.Decimal:
		return v.Rat()
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v == nil {
			return bigquery.NullTimestamp{}
		}
		return v.UTC()
	case *int64:
		if v == nil {
			return bigquery.NullInt64{}
		}
		return *v
	case int:
		return int64(v)
	default:
		return a
	}
}

func normalize(v bigquery.Value) (any, error) {
	switch t := v.(type) {
	case *big.Rat:
		if t == nil {
			return nil, nil
		}
		return decimal.NewFromString(t.FloatString(9))
	case civil.Date:
		return t.In(time.UTC), nil
	case civil.DateTime:
		return t.In(time.UTC), nil
	case time.Time:
		return t.UTC(), nil
	default:
		return v, nil
	}
}
