package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/meetscout/platform/internal/errors"
	"github.com/meetscout/platform/internal/metrics"
)

// Capturer reads mono frames from a single input device and pushes them
// onto the pipeline queue. Device loss surfaces on Errors as a fatal
// capture error rather than silently ending the stream.
type Capturer struct {
	queue      *FrameQueue
	sampleRate int
	frameSize  int
	device     string // substring match, empty picks the default input

	mu       sync.Mutex
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	running  bool
	stopOnce sync.Once
	errCh    chan error
}

// NewCapturer initializes the audio host and prepares a capturer writing
// into queue.
func NewCapturer(queue *FrameQueue, sampleRate, frameSize int, device string) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCaptureUnavailable, "initializing audio host")
	}
	return &Capturer{
		queue:      queue,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		device:     device,
		errCh:      make(chan error, 1),
	}, nil
}

// Errors reports a fatal capture failure, at most once.
func (c *Capturer) Errors() <-chan error { return c.errCh }

// Start opens the input device and begins the read loop.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	dev, err := c.selectDevice()
	if err != nil {
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.frameSize,
	}

	buf := make([]float32, c.frameSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return errors.Wrap(err, errors.CodeCaptureDevice, "opening input stream").
			WithMetadata("device", dev.Name)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return errors.Wrap(err, errors.CodeCaptureDevice, "starting input stream").
			WithMetadata("device", dev.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.running = true
	slog.Info("started audio capture", "device", dev.Name, "sample_rate", c.sampleRate, "frame_size", c.frameSize)

	go c.readLoop(runCtx, stream, buf, dev.Name)
	return nil
}

func (c *Capturer) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, device string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-ctx.Done():
			default:
				c.reportError(errors.Wrap(err, errors.CodeCaptureDevice, "reading from device").
					WithMetadata("device", device))
			}
			return
		}

		c.queue.Push(Frame{
			Samples:    append([]float32(nil), buf...),
			SampleRate: c.sampleRate,
			Timestamp:  time.Now(),
		})
		metrics.FramesCaptured.Inc()
	}
}

func (c *Capturer) reportError(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *Capturer) selectDevice() (*portaudio.DeviceInfo, error) {
	if c.device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeCaptureUnavailable, "no default input device")
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCaptureUnavailable, "listing devices")
	}
	want := strings.ToLower(c.device)
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), want) {
			return dev, nil
		}
	}
	return nil, errors.New(errors.CodeCaptureDevice, "input device not found").
		WithMetadata("device", c.device)
}

// Stop halts the read loop and releases the audio host.
func (c *Capturer) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		if c.stream != nil {
			_ = c.stream.Stop()
			_ = c.stream.Close()
			c.stream = nil
		}
		c.running = false
		_ = portaudio.Terminate()
	})
}
