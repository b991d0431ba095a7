package app

import (
	"errors"
	"time"

	"github.com/ayusman/kestrel/internal/capture"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/pipeline"
)

// runPipeline is the processing loop. It consumes the newest captured frame
// and runs it through the orchestrator.
//
// Pipeline logic:
//  1. Wait up to FrameWait for a frame from the capture queue
//  2. Keep a copy as the latest frame for region sampling
//  3. Skip processing while detection is disabled
//  4. Process the frame; observers receive the result
//  5. Account frames the queue dropped since the last iteration
//  6. Emit a performance report at least once per second, even when
//     frames stop arriving
//  7. Exit when the capture source is exhausted and the queue is empty
func (a *App) runPipeline(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	perf := time.NewTicker(pipeline.PerformanceInterval)
	defer perf.Stop()

	captureDone := a.reader.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-perf.C:
			a.pipeline.EmitPerformance()
			continue
		default:
		}

		frame, err := a.queue.Get(FrameWait)
		if errors.Is(err, capture.ErrQueueEmpty) {
			select {
			case <-captureDone:
				logging.Info(logging.Fields{"source": a.camera.Source()}, "Capture source finished")
				return
			default:
			}
			continue
		}

		a.process(frame)
		a.syncDropped()
	}
}

// process runs one frame through the orchestrator and releases it.
func (a *App) process(frame capture.Frame) {
	defer frame.Mat.Close()

	a.keepLatest(frame)

	if !a.IsEnabled() {
		return
	}

	res := a.pipeline.ProcessCaptured(frame.Mat, frame.Timestamp, frame.Latency)
	res.Annotated.Close()
}

func (a *App) keepLatest(frame capture.Frame) {
	a.frameMu.Lock()
	defer a.frameMu.Unlock()

	if a.hasFrame {
		a.lastFrame.Close()
	}
	a.lastFrame = frame.Mat.Clone()
	a.hasFrame = true
}

// syncDropped adds frames dropped by the queue to the pipeline metrics.
func (a *App) syncDropped() {
	total := a.queue.Dropped()
	if total > a.dropped {
		a.pipeline.MetricsCollector().FramesDropped.Add(total - a.dropped)
		a.dropped = total
	}
}
