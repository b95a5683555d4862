package onnx

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs a YOLOv8 style object detector. Calls are serialized over one native session.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	anchors int
	session *session
}

// NewDetector loads a detector model.
//
// Arguments:
//   - cfg: The model configuration. Zero fields take DetectorDefaults.
//
// Returns:
//   - *Detector: The ready detector.
//   - error: ErrRuntimeUnavailable or a session creation failure.
func NewDetector(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults(DetectorDefaults())
	anchors := AnchorCount(cfg.InputWidth, cfg.InputHeight)

	s, err := newSession(cfg,
		ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth)),
		ort.NewShape(1, int64(4+len(cfg.Classes)), int64(anchors)),
	)
	if err != nil {
		return nil, err
	}

	return &Detector{cfg: cfg, anchors: anchors, session: s}, nil
}

// Infer detects objects in img.
//
// Arguments:
//   - ctx: Checked before the native call, which cannot be interrupted.
//   - img: The decoded image.
//
// Returns:
//   - []detection.Candidate: Class name, score and box per prediction above MinScore.
//   - error: If the session is closed or the run fails.
func (d *Detector) Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}

	err := FillTensor(img.Decoded(), d.session.input.GetData(), d.cfg.InputWidth, d.cfg.InputHeight, d.cfg.Mean, d.cfg.Std)
	if err != nil {
		return nil, errors.Wrap(err, "prepare input")
	}
	if err := d.session.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run detector")
	}

	return DecodeYOLOv8(
		d.session.output.GetData(),
		d.cfg.Classes,
		d.anchors,
		d.cfg.InputWidth, d.cfg.InputHeight,
		img.Width, img.Height,
		d.cfg.MinScore,
	), nil
}

// Close releases the native session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
