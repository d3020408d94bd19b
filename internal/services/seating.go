package services

// SeatingPlan partitions participants across the four table edges.
type SeatingPlan struct {
	Bottom []string `json:"bottom"`
	Top    []string `json:"top"`
	Left   []string `json:"left"`
	Right  []string `json:"right"`
}

// DistributeSeats spreads users as evenly as possible over the four edges,
// filling bottom, then top, then left, then right when the count is not
// divisible by 4. Slices are taken contiguously from the front of the input,
// so callers control ordering by sorting beforehand.
func DistributeSeats(users []string) SeatingPlan {
	base := len(users) / 4
	remainder := len(users) % 4

	bottom := base
	if remainder > 0 {
		bottom++
	}
	top := base
	if remainder > 1 {
		top++
	}
	left := base
	if remainder > 2 {
		left++
	}
	right := base
	if remainder > 3 {
		right++
	}

	return SeatingPlan{
		Bottom: users[0:bottom],
		Top:    users[bottom : bottom+top],
		Left:   users[bottom+top : bottom+top+left],
		Right:  users[bottom+top+left : bottom+top+left+right],
	}
}
