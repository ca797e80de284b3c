// Package server exposes classification, patch assessment and scan history
// over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reefscan/internal/logging"
	"reefscan/internal/predict"
	"reefscan/internal/scan"
	"reefscan/internal/stress"
)

// Classifier scores encoded images.
type Classifier interface {
	Classes() []string
	Classify(ctx context.Context, data []byte) (predict.Prediction, error)
}

// ScanStore persists patch assessments.
type ScanStore interface {
	Create(ctx context.Context, sc *scan.Scan) error
	List(ctx context.Context) ([]scan.Scan, error)
	Sites(ctx context.Context) ([]scan.Site, error)
	SiteScans(ctx context.Context, key string) ([]scan.Scan, error)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClassifyResponse is the result of a single-image classification.
type ClassifyResponse struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Scores     []float64 `json:"scores"`
	Severity   float64   `json:"severity"`
}

// ImageResult is one image of a patch.
type ImageResult struct {
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Scores     []float64 `json:"scores"`
}

// PatchResponse is the result of a patch assessment.
type PatchResponse struct {
	Scan       scan.Scan         `json:"scan"`
	Assessment stress.Assessment `json:"assessment"`
	Images     []ImageResult     `json:"images"`
	TempLevel  string            `json:"temp_level"`
	PollLevel  string            `json:"pollution_level"`
	AcidLevel  string            `json:"acid_level"`
}

// Handler serves the reefscan API.
type Handler struct {
	cls       Classifier
	scorer    *stress.Scorer
	store     ScanStore
	maxUpload int64
	log       *zap.SugaredLogger
}

// NewHandler checks that every class of the classifier has a severity level.
// maxUploadMB bounds the request body; 0 means 10 MB.
func NewHandler(cls Classifier, store ScanStore, maxUploadMB int, log *zap.SugaredLogger) (*Handler, error) {
	scorer, err := stress.NewScorer(cls.Classes())
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &Handler{
		cls:       cls,
		scorer:    scorer,
		store:     store,
		maxUpload: int64(maxUploadMB) << 20,
		log:       logging.OrNop(log),
	}, nil
}

// Health handles /healthz.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Classify handles POST /v1/classify with a multipart "image" field.
func (h *Handler) Classify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, err := c.FormFile("image")
	if err != nil {
		h.formError(c, err, "image file is required")
		return
	}
	data, err := readUpload(file)
	if err != nil {
		h.log.Errorw("failed to read upload", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read image"})
		return
	}

	pred, err := h.cls.Classify(c.Request.Context(), data)
	if err != nil {
		h.log.Warnw("classification failed", "file", file.Filename, "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to classify image: " + err.Error()})
		return
	}
	sev, err := h.scorer.Severity(pred.Scores)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ClassifyResponse{
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Scores:     pred.Scores,
		Severity:   sev,
	})
}

// formError answers a failed multipart parse: 413 when the body went over
// the upload limit, 400 with msg otherwise.
func (h *Handler) formError(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit),
		})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// Patch handles POST /v1/patches: one or more "images" plus the field
// measurements. The assessment is stored as a scan.
func (h *Handler) Patch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	form, err := c.MultipartForm()
	if err != nil {
		h.formError(c, err, "multipart form is required")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at least one image is required"})
		return
	}

	cond, lat, lon, err := parseConditions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	images := make([]ImageResult, 0, len(files))
	scores := make([][]float64, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			h.log.Errorw("failed to read upload", "file", fh.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read image"})
			return
		}
		pred, err := h.cls.Classify(ctx, data)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("failed to classify %s: %v", fh.Filename, err)})
			return
		}
		images = append(images, ImageResult{
			Name:       fh.Filename,
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Scores:     pred.Scores,
		})
		scores = append(scores, pred.Scores)
	}

	a, err := h.scorer.Assess(scores, cond)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	sc := scan.FromAssessment(a, cond, lat, lon)
	sc.ImageName = files[0].Filename
	sc.ImageCount = len(files)
	if err := h.store.Create(ctx, &sc); err != nil {
		h.log.Errorw("failed to store scan", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store scan"})
		return
	}
	h.log.Infow("patch assessed", "scan", sc.ID, "images", len(files), "label", a.Label,
		"fsi", a.FinalStressIndex, "recovery", a.Recovery)

	c.JSON(http.StatusCreated, PatchResponse{
		Scan:       sc,
		Assessment: a,
		Images:     images,
		TempLevel:  stress.Label(a.TempStress),
		PollLevel:  stress.Label(a.PollutionStress),
		AcidLevel:  stress.Label(a.AcidStress),
	})
}

// Scans handles GET /v1/scans.
func (h *Handler) Scans(c *gin.Context) {
	rows, err := h.store.List(c.Request.Context())
	if err != nil {
		h.log.Errorw("failed to list scans", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list scans"})
		return
	}
	if rows == nil {
		rows = []scan.Scan{}
	}
	c.JSON(http.StatusOK, rows)
}

// Sites handles GET /v1/sites.
func (h *Handler) Sites(c *gin.Context) {
	sites, err := h.store.Sites(c.Request.Context())
	if err != nil {
		h.log.Errorw("failed to group scans", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list sites"})
		return
	}
	if sites == nil {
		sites = []scan.Site{}
	}
	c.JSON(http.StatusOK, sites)
}

// Trend handles GET /v1/sites/trend.png?site=<lat, lon>.
func (h *Handler) Trend(c *gin.Context) {
	site := c.Query("site")
	if site == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "site is required"})
		return
	}
	scans, err := h.store.SiteScans(c.Request.Context(), site)
	if errors.Is(err, scan.ErrSiteNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.log.Errorw("failed to load site", "site", site, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load site"})
		return
	}

	var buf bytes.Buffer
	if err := scan.WriteTrend(&buf, site, scans); err != nil {
		h.log.Errorw("failed to render trend", "site", site, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to render trend"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// parseConditions reads the measurements of a patch form. Coordinates are
// optional but must come as a pair.
func parseConditions(c *gin.Context) (stress.Conditions, *float64, *float64, error) {
	var cond stress.Conditions
	fields := []struct {
		name string
		dst  *float64
	}{
		{"surface_temp", &cond.SurfaceTemp},
		{"wqi", &cond.WQI},
		{"ph", &cond.PH},
	}
	for _, f := range fields {
		v, ok, err := formFloat(c, f.name)
		if err != nil {
			return cond, nil, nil, err
		}
		if !ok {
			return cond, nil, nil, fmt.Errorf("%s is required", f.name)
		}
		*f.dst = v
	}

	lat, hasLat, err := formFloat(c, "latitude")
	if err != nil {
		return cond, nil, nil, err
	}
	lon, hasLon, err := formFloat(c, "longitude")
	if err != nil {
		return cond, nil, nil, err
	}
	switch {
	case hasLat && hasLon:
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return cond, nil, nil, fmt.Errorf("coordinates out of range")
		}
		return cond, &lat, &lon, nil
	case hasLat || hasLon:
		return cond, nil, nil, fmt.Errorf("latitude and longitude must be given together")
	}
	return cond, nil, nil, nil
}

func formFloat(c *gin.Context, name string) (float64, bool, error) {
	s := c.PostForm(name)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%s must be a number", name)
	}
	return v, true, nil
}
