package app

import (
	"sort"
	"time"

	"emsi-preparator/internal/domain"
)

// dateLayouts are the attempt date formats seen from the API and the archive.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// TopicStat summarises the attempts on one topic.
type TopicStat struct {
	Topic        string `json:"topic"`
	Attempts     int    `json:"attempts"`
	AverageScore int    `json:"averageScore"`
}

// MonthCount is the number of attempts completed in a calendar month.
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// Dashboard is the overview shown on the landing page.
type Dashboard struct {
	TotalAttempts int          `json:"totalAttempts"`
	AverageScore  int          `json:"averageScore"`
	BestScore     int          `json:"bestScore"`
	Topics        []TopicStat  `json:"topics"`
	Monthly       []MonthCount `json:"monthly"`
}

// BuildDashboard computes the aggregates from raw history. Averages use the
// full-precision scores and are rounded once. Entries with an unreadable date
// count everywhere except the monthly series.
func BuildDashboard(entries []domain.HistoryEntry) Dashboard {
	d := Dashboard{
		TotalAttempts: len(entries),
		Topics:        []TopicStat{},
		Monthly:       []MonthCount{},
	}
	if len(entries) == 0 {
		return d
	}

	type acc struct {
		sum   float64
		count int
	}
	var (
		total  float64
		best   = entries[0].Score
		topics = map[string]*acc{}
		months = map[string]int{}
	)
	for _, e := range entries {
		total += e.Score
		if e.Score > best {
			best = e.Score
		}
		a, ok := topics[e.Topic]
		if !ok {
			a = &acc{}
			topics[e.Topic] = a
		}
		a.sum += e.Score
		a.count++
		if t, ok := parseDate(e.Date); ok {
			months[t.Format("2006-01")]++
		}
	}

	d.AverageScore = domain.RoundScore(total / float64(len(entries)))
	d.BestScore = domain.RoundScore(best)
	for topic, a := range topics {
		d.Topics = append(d.Topics, TopicStat{
			Topic:        topic,
			Attempts:     a.count,
			AverageScore: domain.RoundScore(a.sum / float64(a.count)),
		})
	}
	sort.Slice(d.Topics, func(i, j int) bool { return d.Topics[i].Topic < d.Topics[j].Topic })
	for month, count := range months {
		d.Monthly = append(d.Monthly, MonthCount{Month: month, Count: count})
	}
	// YYYY-MM sorts chronologically as a string
	sort.Slice(d.Monthly, func(i, j int) bool { return d.Monthly[i].Month < d.Monthly[j].Month })
	return d
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
