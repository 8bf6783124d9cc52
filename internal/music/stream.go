package music

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/jonas747/dca"
	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

// FrameSource yields Opus frames for one track
type FrameSource interface {
	NextFrame() ([]byte, error)
	Close() error
}

// Streamer opens an audio stream for a track
type Streamer interface {
	Open(ctx context.Context, t *Track) (FrameSource, error)
}

// DCAStreamer pipes yt-dlp's best audio into a dca encode session
type DCAStreamer struct {
	options *dca.EncodeOptions
	logger  *zap.Logger
}

// NewDCAStreamer creates a streamer. volume is a percentage of the source
// level.
func NewDCAStreamer(volume int, logger *zap.Logger) *DCAStreamer {
	return &DCAStreamer{options: encodeOptions(volume), logger: logger}
}

// encodeOptions maps a volume percentage onto dca's 0..512 scale, where 256
// keeps the source level
func encodeOptions(volume int) *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Bitrate = 96
	opts.Application = dca.AudioApplicationAudio

	if volume <= 0 {
		volume = 100
	}
	opts.Volume = min(volume*256/100, 512)
	return &opts
}

// Open starts the download and the encoder. Both stop when ctx ends or the
// source is closed.
func (s *DCAStreamer) Open(ctx context.Context, t *Track) (FrameSource, error) {
	ctx, cancel := context.WithCancel(ctx)

	download := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
		Output("-").
		NoPlaylist().
		NoPart().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, t.URL)

	pipe, err := download.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open download pipe: %w", err)
	}
	if err := download.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	enc, err := dca.EncodeMem(pipe, s.options)
	if err != nil {
		cancel()
		_ = download.Wait()
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	s.logger.Debug("Stream opened", zap.String("url", t.URL))

	return &dcaSource{enc: enc, download: download, cancel: cancel, logger: s.logger}, nil
}

type dcaSource struct {
	enc      *dca.EncodeSession
	download *exec.Cmd
	cancel   context.CancelFunc
	logger   *zap.Logger
	once     sync.Once
}

// NextFrame returns the next Opus frame, or io.EOF once the encoder is done
func (d *dcaSource) NextFrame() ([]byte, error) {
	return d.enc.OpusFrame()
}

func (d *dcaSource) Close() error {
	d.once.Do(func() {
		d.enc.Cleanup()
		d.cancel()
		if err := d.download.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				d.logger.Debug("Download process ended", zap.Error(err))
			}
		}
		if err := d.enc.Error(); err != nil {
			d.logger.Debug("Encoder ended", zap.Error(err))
		}
	})
	return nil
}
