package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy builds an ORDER BY clause from orderings, keeping only allowed fields.
func OrderBy(orderings []DBOrdering, allowed ...string) string {
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		for _, field := range allowed {
			if ord.Field == field {
				clauses = append(clauses, ord.String())
				break
			}
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
