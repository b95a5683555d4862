package onnx

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Classifier runs a whole-image classifier with a [1, classes] logits output.
type Classifier struct {
	mu      sync.Mutex
	cfg     Config
	session *session
}

// NewClassifier loads a classifier model. Classes must be configured.
//
// Arguments:
//   - cfg: The model configuration. Zero fields take ClassifierDefaults.
//
// Returns:
//   - *Classifier: The ready classifier.
//   - error: If no classes are configured or the session cannot be created.
func NewClassifier(cfg Config) (*Classifier, error) {
	cfg = cfg.withDefaults(ClassifierDefaults())
	if len(cfg.Classes) == 0 {
		return nil, errors.Errorf("classifier %s: no classes configured", cfg.ModelPath)
	}

	s, err := newSession(cfg,
		ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth)),
		ort.NewShape(1, int64(len(cfg.Classes))),
	)
	if err != nil {
		return nil, err
	}

	return &Classifier{cfg: cfg, session: s}, nil
}

// Infer classifies img.
//
// Returns:
//   - []detection.Candidate: Up to TopK classes by softmax probability, without boxes.
//   - error: If the session is closed or the run fails.
func (c *Classifier) Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, errors.New("classifier is closed")
	}

	err := FillTensor(img.Decoded(), c.session.input.GetData(), c.cfg.InputWidth, c.cfg.InputHeight, c.cfg.Mean, c.cfg.Std)
	if err != nil {
		return nil, errors.Wrap(err, "prepare input")
	}
	if err := c.session.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run classifier")
	}

	probs := Softmax(c.session.output.GetData())
	return TopK(probs, c.cfg.Classes, c.cfg.TopK, c.cfg.MinScore), nil
}

// Close releases the native session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

