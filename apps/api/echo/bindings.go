package echoapi

import (
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/farafmb/klubhaus/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-field`; fields missing from allowed are skipped.
func (ord *Ordering) Bind(ctx echo.Context, allowed []string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	sorted := make([]string, len(allowed))
	copy(sorted, allowed)
	sort.Strings(sorted)

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if i := sort.SearchStrings(sorted, field); i == len(sorted) || sorted[i] != field {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}
