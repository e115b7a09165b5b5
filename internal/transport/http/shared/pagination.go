package shared

import (
	"net/http"
	"strconv"
)

// Page is a limit/offset window read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage ignores values that are not positive integers and caps the
// limit at maxLimit when maxLimit is set.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	if maxLimit > 0 {
		page.Limit = min(page.Limit, maxLimit)
	}
	return page
}
