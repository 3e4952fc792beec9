package types

import "sort"

// SortByPriorityThenCreated orders issues priority ascending (0 =
// critical first) then created_at ascending, the order get_ready and
// claim_next both rely on.
func SortByPriorityThenCreated(issues []*Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Priority != issues[j].Priority {
			return issues[i].Priority < issues[j].Priority
		}
		return issues[i].CreatedAt.Before(issues[j].CreatedAt)
	})
}
