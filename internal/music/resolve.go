package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"go.uber.org/zap"
)

// ErrNoResults means the query matched nothing playable
var ErrNoResults = errors.New("no results")

// SearchFunc finds the best match for a keyword query
type SearchFunc func(ctx context.Context, query string) (*Track, error)

// ProbeFunc reads the metadata of a media URL
type ProbeFunc func(ctx context.Context, url string) (*Track, error)

// Resolver turns user input into a track
type Resolver struct {
	search SearchFunc
	probe  ProbeFunc
	logger *zap.Logger
}

// NewResolver creates a resolver backed by YouTube search and yt-dlp
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{search: searchYouTube, probe: probeURL, logger: logger}
}

// Resolve returns a track for a URL or keyword query
func (r *Resolver) Resolve(ctx context.Context, query, requestedBy string) (*Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	var lookup func(context.Context, string) (*Track, error) = r.search
	if isURL(query) {
		lookup = r.probe
	}

	t, err := lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	t.RequestedBy = requestedBy

	r.logger.Debug("Resolved track",
		zap.String("query", query),
		zap.String("title", t.Title),
		zap.Duration("duration", t.Duration),
	)
	return t, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func searchYouTube(ctx context.Context, query string) (*Track, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		return &Track{
			Title:     v.Title,
			URL:       "https://www.youtube.com/watch?v=" + v.VideoID,
			Author:    v.Channel,
			Duration:  ParseClock(v.Duration),
			Thumbnail: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", v.VideoID),
		}, nil
	}
	return nil, ErrNoResults
}

func probeURL(ctx context.Context, url string) (*Track, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := ytdlp.New().
		Print("%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(thumbnail)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		SkipDownload().
		Run(ctx, url)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "unsupported url") {
			return nil, ErrNoResults
		}
		return nil, fmt.Errorf("failed to probe %s: %w", url, err)
	}

	t, ok := parseProbe(res.Stdout)
	if !ok {
		return nil, ErrNoResults
	}
	return t, nil
}

// parseProbe reads the tab separated line printed by probeURL
func parseProbe(out string) (*Track, bool) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(line, "\t")
		if len(ps) < 4 || ps[0] == "" {
			continue
		}
		d, _ := time.ParseDuration(ps[2] + "s")
		t := &Track{Title: ps[0], Author: ps[1], Duration: d, URL: ps[3]}
		if len(ps) >= 5 && ps[4] != "NA" {
			t.Thumbnail = ps[4]
		}
		return t, true
	}
	return nil, false
}
