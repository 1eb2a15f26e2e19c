package fees

import (
	"sort"

	"ms-ordering/internal/models"
)

// Schedule is a fee schedule's ranges ordered by breakpoint.
type Schedule struct {
	ranges []models.FeeScheduleRange
}

func NewSchedule(ranges []models.FeeScheduleRange) Schedule {
	sorted := make([]models.FeeScheduleRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPriceInCents < sorted[j].MinPriceInCents
	})
	return Schedule{ranges: sorted}
}

// RangeFor returns the range with the greatest breakpoint <= price. Prices
// under the first breakpoint get the lowest range. An empty schedule
// returns false.
func (s Schedule) RangeFor(price int64) (models.FeeScheduleRange, bool) {
	if len(s.ranges) == 0 {
		return models.FeeScheduleRange{}, false
	}
	// first index whose breakpoint is above price
	i := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].MinPriceInCents > price
	})
	if i == 0 {
		return s.ranges[0], true
	}
	return s.ranges[i-1], true
}
