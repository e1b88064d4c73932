package imerg

import (
	"fmt"
	"time"
)

// YearMonth keys one remote partition folder.
type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// String renders the partition path segment, e.g. "2018/08".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d/%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

func (ym YearMonth) after(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

// PlanMonths returns every (year, month) partition from `from` through `to`
// inclusive, in ascending chronological order. Months roll into the
// following year. A `from` later than `to` yields no partitions.
func PlanMonths(from, to YearMonth) []YearMonth {
	if from.after(to) {
		return nil
	}
	months := make([]YearMonth, 0, 12)
	for cursor := from; !cursor.after(to); cursor = cursor.next() {
		months = append(months, cursor)
	}
	return months
}
