package importer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/validator"
)

// cells decodes typed values out of a record. The first coercion failure is
// kept and reported; later calls become no-ops returning zero values.
type cells struct {
	rec   Record
	field string
	err   string
}

func (c *cells) fail(col, msg string) {
	if c.err == "" {
		c.field = col
		c.err = msg
	}
}

func (c *cells) str(col string) *string {
	v, ok := c.rec.Get(col)
	if !ok {
		return nil
	}
	return &v
}

func (c *cells) integer(col string) *int {
	v, ok := c.rec.Get(col)
	if !ok {
		return nil
	}
	// Spreadsheet exports often write whole numbers as "800.0".
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		c.fail(col, fmt.Sprintf("Invalid integer value '%s' for %s", v, col))
		return nil
	}
	// Columns are Postgres INT.
	if f > math.MaxInt32 || f < math.MinInt32 {
		c.fail(col, fmt.Sprintf("Integer value '%s' for %s is out of range", v, col))
		return nil
	}
	n := int(f)
	return &n
}

func (c *cells) float(col string) *float64 {
	v, ok := c.rec.Get(col)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		c.fail(col, fmt.Sprintf("Invalid number value '%s' for %s", v, col))
		return nil
	}
	return &f
}

func (c *cells) uuid(col string) uuid.UUID {
	v, ok := c.rec.Get(col)
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		c.fail(col, fmt.Sprintf("Invalid UUID value '%s' for %s", v, col))
		return uuid.Nil
	}
	return id
}

func (c *cells) date(col string) *time.Time {
	v, ok := c.rec.Get(col)
	if !ok {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	c.fail(col, fmt.Sprintf("Invalid date value '%s' for %s, expected YYYY-MM-DD", v, col))
	return nil
}

// rowError builds the error reported for rec.
func rowError(rec Record, field, msg string) model.RowError {
	return model.RowError{
		RowNumber: rec.Number,
		Field:     field,
		Error:     msg,
		Data:      rec.Values,
	}
}

// structError validates v against its binding tags and folds the field map
// into a single deterministic message.
func structError(rec Record, v interface{}) *model.RowError {
	fields := validator.Struct(v)
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	re := rowError(rec, keys[0], strings.Join(msgs, "; "))
	return &re
}

func extraCellsError(rec Record) *model.RowError {
	if rec.Extra == 0 {
		return nil
	}
	re := rowError(rec, "", fmt.Sprintf("Row has %d more cells than the header", rec.Extra))
	return &re
}
