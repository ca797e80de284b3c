package backbone

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"os"

	"go.uber.org/zap"

	reefimage "reefscan/internal/image"
	"reefscan/internal/logging"
)

// Featurizer runs the preprocessing and trunk on image files, consulting an
// optional feature cache.
type Featurizer struct {
	ext   Extractor
	size  int
	cache *Cache
	log   *zap.SugaredLogger

	hits, misses int
}

// NewFeaturizer wraps ext. cache and log may be nil.
func NewFeaturizer(ext Extractor, inputSize int, cache *Cache, log *zap.SugaredLogger) *Featurizer {
	return &Featurizer{
		ext:   ext,
		size:  inputSize,
		cache: cache,
		log:   logging.OrNop(log),
	}
}

// Extractor returns the wrapped trunk.
func (f *Featurizer) Extractor() Extractor { return f.ext }

// Image preprocesses img and returns its embedding.
func (f *Featurizer) Image(img image.Image) ([]float64, error) {
	emb, err := f.ext.Extract(reefimage.Preprocess(img, f.size))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.ext.Name(), err)
	}
	return emb, nil
}

// Bytes decodes an encoded image and returns its embedding.
func (f *Featurizer) Bytes(data []byte) ([]float64, error) {
	key := f.cacheKey(data)
	if emb, ok := f.lookup(key); ok {
		return emb, nil
	}

	img, err := reefimage.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	emb, err := f.Image(img)
	if err != nil {
		return nil, err
	}
	f.store(key, emb)
	return emb, nil
}

// File returns the embedding of the image stored at path.
func (f *Featurizer) File(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	emb, err := f.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return emb, nil
}

// Files embeds every path in order. progress, if set, is called after each
// image.
func (f *Featurizer) Files(paths []string, progress func(done, total int)) ([][]float64, error) {
	out := make([][]float64, len(paths))
	for i, p := range paths {
		emb, err := f.File(p)
		if err != nil {
			return nil, err
		}
		out[i] = emb
		if progress != nil {
			progress(i+1, len(paths))
		}
	}
	f.log.Debugw("featurized", "images", len(paths), "cache_hits", f.hits, "cache_misses", f.misses)
	return out, nil
}

// CacheStats reports cache hits and misses since creation.
func (f *Featurizer) CacheStats() (hits, misses int) { return f.hits, f.misses }

func (f *Featurizer) cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s/%d/%s", f.ext.Identity(), f.size, hex.EncodeToString(sum[:]))
}

func (f *Featurizer) lookup(key string) ([]float64, bool) {
	if f.cache == nil {
		return nil, false
	}
	emb, ok, err := f.cache.Get(key)
	if err != nil {
		f.log.Warnw("feature cache read failed", "error", err)
		return nil, false
	}
	if !ok || len(emb) != f.ext.Dim() {
		f.misses++
		return nil, false
	}
	f.hits++
	return emb, true
}

func (f *Featurizer) store(key string, emb []float64) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Put(key, emb); err != nil {
		f.log.Warnw("feature cache write failed", "error", err)
	}
}
