package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// Local runs the extraction models in-process: RetinaFace detection followed
// by ArcFace embedding. It produces 512-dimensional vectors, so
// extractor.dimension must be 512 in local mode.
//
// ONNX sessions hold fixed input/output tensors, so runs are serialized with
// a mutex. The mutex is internal to this implementation; callers of
// Extractor never hold locks across extraction.
type Local struct {
	mu       sync.Mutex
	detector *detector
	embedder *embedder
}

// NewLocal loads the detection and embedding models from cfg.ModelsDir.
// The caller must have initialized the ONNX Runtime environment.
func NewLocal(cfg config.ExtractorConfig) (*Local, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := newDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newEmbedder(embPath)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	if embDim := emb.embDim; cfg.Dimension != embDim {
		det.close()
		emb.close()
		return nil, fmt.Errorf("local extractor produces %d-dimensional embeddings, config says %d", embDim, cfg.Dimension)
	}

	return &Local{detector: det, embedder: emb}, nil
}

func (l *Local) ExtractMany(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		observability.ExtractDuration.WithLabelValues("many").Observe(time.Since(start).Seconds())
	}()

	out := make([]models.EmbeddingVector, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		vec, err := l.embedImage(img)
		if err != nil {
			// Per-image failure: undecodable image, model run error. Slot
			// stays nil, like a no-face result.
			slog.Debug("local extract skipped image", "index", i, "error", err)
			continue
		}
		out[i] = vec // nil when no face was found
	}
	return out, nil
}

func (l *Local) ExtractOne(ctx context.Context, img []byte) (models.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		observability.ExtractDuration.WithLabelValues("one").Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	vec, err := l.embedImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vec, nil // vec is nil when no face was found
}

// embedImage decodes one image, detects the most confident face and embeds
// it. Returns (nil, nil) when no face is found.
func (l *Local) embedImage(data []byte) (models.EmbeddingVector, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	l.mu.Lock()
	defer l.mu.Unlock()

	detInput := preprocessForDetection(img, l.detector.inputW, l.detector.inputH)
	detections, err := l.detector.detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if len(detections) == 0 {
		return nil, nil
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.confidence > best.confidence {
			best = d
		}
	}

	faceCrop := cropFace(img, best.bbox)
	if faceCrop == nil {
		return nil, nil
	}

	embInput := preprocessForEmbedding(faceCrop, l.embedder.inputW, l.embedder.inputH)
	embedding, err := l.embedder.extract(embInput)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	return embedding, nil
}

// Close releases the ONNX sessions.
func (l *Local) Close() {
	if l.detector != nil {
		l.detector.close()
	}
	if l.embedder != nil {
		l.embedder.close()
	}
}
