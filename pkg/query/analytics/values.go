package analytics

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// DuckDB returns driver-native values; these helpers fold them into the
// result types. Monetary columns arrive as VARCHAR to keep exact decimals.

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func dec(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case *big.Int:
		return decimal.NewFromBigInt(x, 0)
	default:
		return decimal.NewFromInt(i64(x))
	}
}

func i64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint64:
		return int64(x)
	case uint32:
		return int64(x)
	case *big.Int:
		return x.Int64()
	case float64:
		return int64(x)
	default:
		return 0
	}
}

// date returns a calendar date as UTC midnight.
func date(v any) time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timestamp(v any) time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}
	}
	return t.UTC()
}

func optTime(v any) *time.Time {
	if _, ok := v.(time.Time); !ok {
		return nil
	}
	t := date(v)
	return &t
}

// average is total/count rounded to cents.
func average(total decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(count)).Round(2)
}
