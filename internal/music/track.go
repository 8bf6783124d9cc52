// Package music plays queued audio tracks into guild voice channels and
// renders their progress for the control panel.
package music

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"miyako-bot/config"
)

// frameDuration is the length of one Opus frame sent to the voice gateway
const frameDuration = 20 * time.Millisecond

// Track is one playable item
type Track struct {
	Title       string
	URL         string
	Author      string
	Duration    time.Duration
	Thumbnail   string
	RequestedBy string
}

// Queue holds the current track and the tracks waiting after it
type Queue struct {
	current  *Track
	upcoming []*Track
	repeat   bool
}

// Add appends t and returns its position; 0 means it plays next
func (q *Queue) Add(t *Track) int {
	q.upcoming = append(q.upcoming, t)
	return len(q.upcoming) - 1
}

// Advance moves to the next track. With repeat on, a track that was not
// skipped plays again.
func (q *Queue) Advance(skipped bool) *Track {
	if q.current != nil && q.repeat && !skipped {
		return q.current
	}
	if len(q.upcoming) == 0 {
		q.current = nil
		return nil
	}
	q.current = q.upcoming[0]
	q.upcoming = q.upcoming[1:]
	return q.current
}

func (q *Queue) Current() *Track {
	return q.current
}

// Upcoming returns a copy of the waiting tracks
func (q *Queue) Upcoming() []*Track {
	return append([]*Track(nil), q.upcoming...)
}

func (q *Queue) Repeat() bool {
	return q.repeat
}

func (q *Queue) SetRepeat(on bool) {
	q.repeat = on
}

// Clear drops every track
func (q *Queue) Clear() {
	q.current = nil
	q.upcoming = nil
}

// FormatClock renders d as the player shows timestamps: "0:45", "03:05",
// "01:02:03"
func FormatClock(d time.Duration) string {
	total := int(d / time.Second)
	parts := []int{total / 86400, total / 3600 % 24, total / 60 % 60, total % 60}

	first := 0
	for first < len(parts)-1 && parts[first] == 0 {
		first++
	}

	labels := make([]string, 0, len(parts)-first)
	for _, p := range parts[first:] {
		labels = append(labels, fmt.Sprintf("%02d", p))
	}
	final := strings.Join(labels, ":")
	if len(final) <= 3 {
		return "0:" + final
	}
	return final
}

// ParseClock parses "m:ss" or "h:mm:ss" as returned by search results
func ParseClock(s string) time.Duration {
	var d time.Duration
	for _, part := range strings.Split(strings.TrimSpace(s), ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		d = d*60 + time.Duration(n)
	}
	return d * time.Second
}

// ProgressBar renders "elapsed ┃ ▬▬🔘▬▬ ┃ total"
func ProgressBar(cfg config.ProgressBarConfig, elapsed, total time.Duration) string {
	length := cfg.Length
	if length <= 0 {
		length = 14
	}

	index := 0
	if total > 0 {
		index = int(math.Round(float64(elapsed) / float64(total) * float64(length)))
	}

	var bar string
	if index >= 1 && index <= length {
		bar = strings.Repeat(cfg.LeftChar, index-1) + cfg.Indicator + strings.Repeat(cfg.RightChar, length-index)
	} else {
		bar = cfg.Indicator + strings.Repeat(cfg.RightChar, length-1)
	}
	return fmt.Sprintf("%s ┃ %s ┃ %s", FormatClock(elapsed), bar, FormatClock(total))
}
