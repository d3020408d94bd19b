package services

import (
	"math"

	"github.com/damain/planning-poker/internal/models"
)

type VoteStatistics struct {
	Optimistic  int `json:"optimistic"`
	Likely      int `json:"likely"`
	Pessimistic int `json:"pessimistic"`
}

// CalculateStatistics aggregates the non-null vote values of one story.
// Likely is the mean rounded half away from zero. With no non-null votes all
// three fields are 0, which callers render as "-"; no scale offers a 0 card,
// so the overload stays latent.
func CalculateStatistics(votes []models.Vote) VoteStatistics {
	var values []int
	for i := range votes {
		if votes[i].VoteValue != nil {
			values = append(values, *votes[i].VoteValue)
		}
	}
	if len(values) == 0 {
		return VoteStatistics{}
	}

	min, max, sum := values[0], values[0], 0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	return VoteStatistics{
		Optimistic:  min,
		Likely:      int(math.Round(float64(sum) / float64(len(values)))),
		Pessimistic: max,
	}
}
