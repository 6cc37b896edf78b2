package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/BruceJL/mysql-json-bridge/pkg/mysql"
)

// Envelope is the JSON response body: resource names mapped to a row, a row
// list, or (for include expansion) both the primary and the related
// collection.
type Envelope map[string]any

func listEnvelope(plural string, rows []mysql.Row) Envelope {
	return Envelope{plural: fixupRows(rows)}
}

func resourceEnvelope(plural string, row mysql.Row) Envelope {
	return Envelope{plural: fixupRow(row)}
}

func createdEnvelope(singular string, row mysql.Row) Envelope {
	return Envelope{singular: fixupRow(row)}
}

// includeEnvelope wraps the primary row in a one-element list, augments it
// with the related rows' id values under the relation's plural name, and
// adds the full related rows as a second top-level collection.
func includeEnvelope(primaryPlural string, row mysql.Row, includePlural string, related []mysql.Row) Envelope {
	ids := make([]any, 0, len(related))
	for _, r := range related {
		ids = append(ids, fixupValue(r["id"]))
	}

	augmented := fixupRow(row)
	augmented[includePlural] = ids

	return Envelope{
		primaryPlural: []map[string]any{augmented},
		includePlural: fixupRows(related),
	}
}

func fixupRows(rows []mysql.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, fixupRow(row))
	}
	return out
}

func fixupRow(row mysql.Row) map[string]any {
	out := make(map[string]any, len(row))
	for column, value := range row {
		out[column] = fixupValue(value)
	}
	return out
}

// fixupValue converts driver scalars into JSON-native values: datetimes as
// ISO-8601 strings, fixed-point decimals as floats. Anything unrecognized —
// including raw bytes from BLOB/BINARY columns — degrades to null instead of
// failing the whole response.
func fixupValue(v any) any {
	switch v := v.(type) {
	case nil, bool, string:
		return v
	case int64, int32, int, uint64, uint32, float64, float32:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	default:
		return nil
	}
}
