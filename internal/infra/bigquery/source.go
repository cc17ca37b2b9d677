package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/table"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// ReadTable loads a dataset from the table of the same name.
func (r *Repository) ReadTable(ctx context.Context, ds ingest.Dataset) (*table.Table, error) {
	t, err := ReadTableWithClient(ctx, r.client, r.datasetID, string(ds))
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("dataset", string(ds)).
		Str("table", r.datasetID+"."+string(ds)).
		Int("rows", t.Len()).
		Msg("Loaded source")
	return t, nil
}

// ReadTableWithClient reads every row of datasetID.tableName as strings,
// keeping the BigQuery column names as headers.
func ReadTableWithClient(ctx context.Context, client *bigquery.Client, datasetID, tableName string) (*table.Table, error) {
	q := client.Query(fmt.Sprintf("SELECT * FROM %s", qualified(client.Project(), datasetID, tableName)))

	it, err := q.Read(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("ReadTableWithClient: %s.%s: %w", datasetID, tableName, ingest.ErrSourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ReadTableWithClient: reading query: %w", err)
	}

	var t *table.Table
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadTableWithClient: iterating: %w", err)
		}
		if t == nil {
			t = table.New(tableName, schemaColumns(it.Schema)...)
		}

		row := make([]string, len(values))
		for i, v := range values {
			row[i] = valueString(v)
		}
		t.Append(row...)
	}

	if t == nil {
		// the schema is only known after the first page
		t = table.New(tableName, schemaColumns(it.Schema)...)
	}
	return t, nil
}

func schemaColumns(s bigquery.Schema) []string {
	cols := make([]string, len(s))
	for i, f := range s {
		cols[i] = f.Name
	}
	return cols
}

// valueString renders a BigQuery cell the way the CSV sources spell it.
func valueString(v bigquery.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case *big.Rat:
		return decimal.NewFromBigRat(x, 9).String()
	case civil.Date:
		return x.String()
	case civil.DateTime:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return true
	}
	var bqErr *bigquery.Error
	return errors.As(err, &bqErr) && bqErr.Reason == "notFound"
}
