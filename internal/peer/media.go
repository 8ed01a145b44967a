package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusClockRate   = 48000
	mediaStreamID   = "meetroom"
)

// StaticMedia is a fixed set of tracks with nothing to stop.
type StaticMedia []webrtc.TrackLocal

func (s StaticMedia) Tracks() []webrtc.TrackLocal { return s }
func (s StaticMedia) Stop()                       {}

// FileMedia plays an IVF (VP8) file and an Ogg (Opus) file onto sample
// tracks in real time. Either path may be empty, not both.
type FileMedia struct {
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func OpenFileMedia(videoPath, audioPath string, log *slog.Logger) (*FileMedia, error) {
	if videoPath == "" && audioPath == "" {
		return nil, ErrNoLocalMedia
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	fm := &FileMedia{cancel: cancel, log: log}

	if videoPath != "" {
		if err := fm.startVideo(ctx, videoPath); err != nil {
			fm.Stop()
			return nil, err
		}
	}
	if audioPath != "" {
		if err := fm.startAudio(ctx, audioPath); err != nil {
			fm.Stop()
			return nil, err
		}
	}
	return fm, nil
}

func (fm *FileMedia) Tracks() []webrtc.TrackLocal {
	return fm.tracks
}

func (fm *FileMedia) Stop() {
	fm.cancel()
	fm.wg.Wait()
}

func (fm *FileMedia) startVideo(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("read ivf header: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", mediaStreamID)
	if err != nil {
		file.Close()
		return fmt.Errorf("create video track: %w", err)
	}
	fm.tracks = append(fm.tracks, track)

	frameDuration := time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}

	fm.wg.Add(1)
	go func() {
		defer fm.wg.Done()
		defer file.Close()

		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				fm.log.Info("video file finished")
				return
			}
			if err != nil {
				fm.log.Warn("read video frame", sl.Err(err))
				return
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				fm.log.Warn("write video sample", sl.Err(err))
				return
			}
		}
	}()
	return nil
}

func (fm *FileMedia) startAudio(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("read ogg header: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", mediaStreamID)
	if err != nil {
		file.Close()
		return fmt.Errorf("create audio track: %w", err)
	}
	fm.tracks = append(fm.tracks, track)

	fm.wg.Add(1)
	go func() {
		defer fm.wg.Done()
		defer file.Close()

		var lastGranule uint64
		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				fm.log.Info("audio file finished")
				return
			}
			if err != nil {
				fm.log.Warn("read audio page", sl.Err(err))
				return
			}

			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples)/opusClockRate*1000) * time.Millisecond
			if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
				fm.log.Warn("write audio sample", sl.Err(err))
				return
			}
		}
	}()
	return nil
}
