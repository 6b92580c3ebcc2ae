package composite

import (
	"fmt"

	"github.com/Aman-CERP/shardex/internal/engine"
)

// RouteFunc returns the criteria key that owns a document.
type RouteFunc func(doc *engine.Document) string

// FieldRouter routes by the value of field. Documents without the field, or
// with an empty value, go to defaultKey. Non-string values are formatted with
// fmt, so a JSON number 2 routes to "2".
func FieldRouter(field, defaultKey string) RouteFunc {
	return func(doc *engine.Document) string {
		switch v := doc.Get(field).(type) {
		case nil:
			return defaultKey
		case string:
			if v == "" {
				return defaultKey
			}
			return v
		default:
			return fmt.Sprint(v)
		}
	}
}
