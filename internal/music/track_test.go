package music

import (
	"context"
	"testing"
	"time"

	"miyako-bot/config"

	"go.uber.org/zap/zaptest"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{5 * time.Second, "0:05"},
		{45 * time.Second, "0:45"},
		{185 * time.Second, "03:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.d); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	if got := ParseClock("3:05"); got != 185*time.Second {
		t.Errorf("Expected 185s, got %v", got)
	}
	if got := ParseClock("1:02:03"); got != time.Hour+2*time.Minute+3*time.Second {
		t.Errorf("Unexpected %v", got)
	}
	if got := ParseClock("live"); got != 0 {
		t.Errorf("Expected 0 for unparsable input, got %v", got)
	}
}

func TestProgressBar(t *testing.T) {
	cfg := config.ProgressBarConfig{Length: 14, Indicator: "🔘", LeftChar: "▬", RightChar: "▬"}

	tests := []struct {
		name           string
		elapsed, total time.Duration
		want           string
	}{
		{"halfway", time.Minute, 2 * time.Minute, "01:00 ┃ ▬▬▬▬▬▬🔘▬▬▬▬▬▬▬ ┃ 02:00"},
		{"start", 0, 2 * time.Minute, "0:00 ┃ 🔘▬▬▬▬▬▬▬▬▬▬▬▬▬ ┃ 02:00"},
		{"end", 2 * time.Minute, 2 * time.Minute, "02:00 ┃ ▬▬▬▬▬▬▬▬▬▬▬▬▬🔘 ┃ 02:00"},
		{"unknown length", 30 * time.Second, 0, "0:30 ┃ 🔘▬▬▬▬▬▬▬▬▬▬▬▬▬ ┃ 0:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressBar(cfg, tt.elapsed, tt.total); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueueAdvance(t *testing.T) {
	var q Queue
	a, b := &Track{Title: "A"}, &Track{Title: "B"}

	if q.Add(a) != 0 || q.Add(b) != 1 {
		t.Fatal("Unexpected queue positions")
	}
	if q.Advance(false) != a {
		t.Fatal("Expected A first")
	}

	q.SetRepeat(true)
	if q.Advance(false) != a {
		t.Error("Expected repeat to replay A")
	}
	if q.Advance(true) != b {
		t.Error("Expected skip to move to B despite repeat")
	}
	if q.Advance(true) != nil || q.Current() != nil {
		t.Error("Expected empty queue")
	}
}

func TestResolverDispatch(t *testing.T) {
	var searched, probed string
	r := &Resolver{
		search: func(_ context.Context, q string) (*Track, error) {
			searched = q
			return &Track{Title: "found"}, nil
		},
		probe: func(_ context.Context, u string) (*Track, error) {
			probed = u
			return &Track{Title: "probed", URL: u}, nil
		},
		logger: zaptest.NewLogger(t),
	}

	tr, err := r.Resolve(context.Background(), "  never gonna give you up ", "tester")
	if err != nil || searched != "never gonna give you up" || tr.RequestedBy != "tester" {
		t.Errorf("Unexpected search result %+v %v", tr, err)
	}

	if _, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "tester"); err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if probed != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Expected URL to be probed, got %q", probed)
	}

	if _, err := r.Resolve(context.Background(), "   ", "tester"); err != ErrNoResults {
		t.Errorf("Expected ErrNoResults for blank query, got %v", err)
	}

	r.probe = func(context.Context, string) (*Track, error) { return nil, ErrNoResults }
	searched = ""
	if _, err := r.Resolve(context.Background(), "http://example.com/nothing", "tester"); err != ErrNoResults {
		t.Errorf("Expected the probe error to be returned, got %v", err)
	}
	if searched != "" {
		t.Errorf("Expected a URL not to be searched, got %q", searched)
	}
}

func TestParseProbe(t *testing.T) {
	tr, ok := parseProbe("Song\tArtist\t213\thttps://www.youtube.com/watch?v=x\thttps://i.ytimg.com/x.jpg\n")
	if !ok {
		t.Fatal("Expected probe output to parse")
	}
	if tr.Duration != 213*time.Second || tr.Author != "Artist" || tr.Thumbnail == "" {
		t.Errorf("Unexpected track %+v", tr)
	}
	if _, ok := parseProbe("garbage"); ok {
		t.Error("Expected garbage to be rejected")
	}
}
