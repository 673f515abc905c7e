package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

const orderingParam = "ordering"

// bindOrdering reads `?ordering=-created_at,status` into DB orderings.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}
	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}

// bindAttemptFilter reads learner_id, prompt_id and repeated or comma separated status params.
func bindAttemptFilter(ctx echo.Context) attempt.QueryFilter {
	filter := attempt.QueryFilter{
		LearnerID: ctx.QueryParam("learner_id"),
		PromptID:  ctx.QueryParam("prompt_id"),
	}
	for _, val := range ctx.QueryParams()["status"] {
		for _, s := range strings.Split(val, ",") {
			if s = core.CleanString(s, true); s != "" {
				filter.Statuses = append(filter.Statuses, attempt.Status(s))
			}
		}
	}
	filter.Clean()
	return filter
}
