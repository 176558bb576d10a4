package nudge

import "time"

// CategorySummary counts what happened to one nudge kind in a cycle.
type CategorySummary struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// Summary is the JSON body returned by a dispatch cycle.
type Summary struct {
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Categories map[string]*CategorySummary `json:"categories"`
	Errors     int                         `json:"errors"`
}

func NewSummary(started time.Time) *Summary {
	s := &Summary{
		StartedAt:  started,
		Categories: make(map[string]*CategorySummary, len(Kinds)),
	}
	for _, k := range Kinds {
		s.Categories[k] = &CategorySummary{}
	}
	return s
}

func (s *Summary) category(kind string) *CategorySummary {
	c, ok := s.Categories[kind]
	if !ok {
		c = &CategorySummary{}
		s.Categories[kind] = c
	}
	return c
}

func (s *Summary) add(kind string, o Outcome) {
	c := s.category(kind)
	c.Candidates++
	switch o.Result {
	case ResultSent:
		c.Sent++
	case ResultSkipped:
		c.Skipped++
	default:
		c.Errors++
		s.Errors++
	}
}

func (s *Summary) addScanErrors(kind string, n int) {
	if n == 0 {
		return
	}
	s.category(kind).Errors += n
	s.Errors += n
}

// Sent totals sends across kinds.
func (s *Summary) Sent() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Sent
	}
	return n
}
