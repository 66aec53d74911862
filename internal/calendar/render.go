package calendar

// Lookup resolves event labels for a day.
type Lookup interface {
	Lookup(key DateKey) (string, bool)
}

// MapLookup adapts a plain map to Lookup.
type MapLookup map[DateKey]string

// Lookup implements Lookup.
func (m MapLookup) Lookup(key DateKey) (string, bool) {
	label, ok := m[key]
	return label, ok
}

// DayCell is one unit of the month grid: either an empty placeholder
// before day 1, or a day with an optional event label and today marker.
type DayCell struct {
	Empty    bool    `json:"empty"`
	Day      int     `json:"day,omitempty"`
	Key      DateKey `json:"key,omitempty"`
	Label    string  `json:"label,omitempty"`
	HasEvent bool    `json:"has_event,omitempty"`
	Today    bool    `json:"today,omitempty"`
}

// Month is a rendered month grid.
type Month struct {
	Period Period    `json:"period"`
	Label  string    `json:"label"`
	Cells  []DayCell `json:"cells"`
}

// Render computes the month grid for period. The result depends only on
// its arguments: leading placeholders up to the weekday of day 1, then
// one cell per day carrying the label found in lookup, with the cell
// equal to today marked. A nil lookup renders no events.
//
// The period is not validated; callers pass a normalized one.
func Render(period Period, lookup Lookup, today Date) Month {
	firstWeekday := FirstWeekday(period.Year, period.Month)
	daysInMonth := DaysInMonth(period.Year, period.Month)

	cells := make([]DayCell, 0, firstWeekday+daysInMonth)
	for i := 0; i < firstWeekday; i++ {
		cells = append(cells, DayCell{Empty: true})
	}

	for day := 1; day <= daysInMonth; day++ {
		cell := DayCell{
			Day: day,
			Key: KeyFor(period.Year, period.Month, day),
		}
		if lookup != nil {
			if label, ok := lookup.Lookup(cell.Key); ok {
				cell.Label = label
				cell.HasEvent = true
			}
		}
		cell.Today = day == today.Day && period.Month == today.Month && period.Year == today.Year
		cells = append(cells, cell)
	}

	return Month{
		Period: period,
		Label:  period.Label(),
		Cells:  cells,
	}
}

// Days returns the non-empty cells.
func (m Month) Days() []DayCell {
	var days []DayCell
	for _, c := range m.Cells {
		if !c.Empty {
			days = append(days, c)
		}
	}
	return days
}

// Event is a labelled calendar date.
type Event struct {
	Date  Date
	Label string
}

// Events returns the labelled days of the month in day order.
func (m Month) Events() []Event {
	var events []Event
	for _, c := range m.Cells {
		if c.HasEvent {
			date := Date{Year: m.Period.Year, Month: m.Period.Month, Day: c.Day}
			events = append(events, Event{Date: date, Label: c.Label})
		}
	}
	return events
}

// Weeks splits the cells into rows of seven, padding the last row with
// empty cells.
func (m Month) Weeks() [][]DayCell {
	var weeks [][]DayCell
	for i := 0; i < len(m.Cells); i += 7 {
		end := i + 7
		week := make([]DayCell, 7)
		for j := range week {
			week[j] = DayCell{Empty: true}
		}
		if end > len(m.Cells) {
			end = len(m.Cells)
		}
		copy(week, m.Cells[i:end])
		weeks = append(weeks, week)
	}
	return weeks
}
