package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	axml "github.com/cbegin/axml-go"
	intseq "github.com/cbegin/axml-go/internal/sequencer"
)

// requestTracking adds a request ID header and logs each request.
func (s *Server) requestTracking() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("request failed", attrs...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("request rejected", attrs...)
		default:
			s.logger.Info("request completed", attrs...)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"sample_rate": axml.OfflineSampleRate,
	})
}

type trackSummary struct {
	Name       string `json:"name"`
	Instrument string `json:"instrument"`
	Events     int    `json:"events"`
}

type parseSummary struct {
	Title         string         `json:"title"`
	Artist        string         `json:"artist"`
	Tempo         float64        `json:"tempo"`
	Key           string         `json:"key"`
	TimeSignature string         `json:"timeSignature"`
	Instruments   []string       `json:"instruments"`
	Patterns      []string       `json:"patterns"`
	Tracks        []trackSummary `json:"tracks"`
	Notes         int            `json:"notes"`
	Duration      float64        `json:"duration"`
	Samples       []string       `json:"samples"`
	FileName      string         `json:"fileName"`
}

func (s *Server) handleParse(c *gin.Context) {
	doc, ok := s.readDocument(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.summarize(doc))
}

func (s *Server) summarize(doc *axml.Document) parseSummary {
	notes := intseq.FlattenWithDepth(doc, s.config.MaxPatternDepth)
	sum := parseSummary{
		Title:         doc.Metadata.Title,
		Artist:        doc.Metadata.Artist,
		Tempo:         doc.Metadata.Tempo,
		Key:           doc.Metadata.Key,
		TimeSignature: doc.Metadata.TimeSignature,
		Instruments:   sortedKeys(doc.Instruments),
		Patterns:      sortedKeys(doc.Patterns),
		Tracks:        []trackSummary{},
		Notes:         len(notes),
		Duration:      intseq.Duration(notes, doc.Metadata.Tempo),
		Samples:       doc.SampleSources(),
		FileName:      axml.SuggestedFileName(doc.Metadata),
	}
	for _, tr := range doc.Tracks {
		sum.Tracks = append(sum.Tracks, trackSummary{Name: tr.Name, Instrument: tr.InstrumentID, Events: len(tr.Events)})
	}
	if sum.Samples == nil {
		sum.Samples = []string{}
	}
	return sum
}

// handleRender renders the posted document offline and returns it as WAV.
// An optional seed query parameter makes the render reproducible. Sample
// instruments are not fetched and play as sine tones.
func (s *Server) handleRender(c *gin.Context) {
	doc, ok := s.readDocument(c)
	if !ok {
		return
	}
	renderID := uuid.New().String()
	opts := []axml.RenderOption{
		axml.WithPatternDepth(s.config.MaxPatternDepth),
		axml.WithMaxSeconds(s.config.MaxRenderLength.Seconds()),
	}
	if raw := c.Query("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seed must be an integer"})
			return
		}
		opts = append(opts, axml.WithSeed(seed))
	}

	start := time.Now()
	buf, err := axml.Render(c.Request.Context(), doc, opts...)
	if errors.Is(err, axml.ErrNothingToRender) || errors.Is(err, axml.ErrTooLong) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.captureError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed", "render_id": renderID})
		return
	}
	wav := axml.EncodeWAV(buf)
	s.logger.Info("song rendered",
		slog.String("render_id", renderID),
		slog.String("title", doc.Metadata.Title),
		slog.Float64("duration", buf.Seconds()),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	c.Header("X-Render-ID", renderID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", axml.SuggestedFileName(doc.Metadata)))
	c.Data(http.StatusOK, "audio/wav", wav)
}

// readDocument parses the request body. It writes the error response and
// returns false when the body is not a valid document.
func (s *Server) readDocument(c *gin.Context) (*axml.Document, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return nil, false
	}
	doc, err := axml.Parse(string(body))
	if err != nil {
		resp := gin.H{"error": err.Error()}
		var se *axml.SyntaxError
		if errors.As(err, &se) && se.Line > 0 {
			resp["line"] = se.Line
		}
		c.JSON(http.StatusBadRequest, resp)
		return nil, false
	}
	return doc, true
}

func (s *Server) captureError(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", c.GetString("request_id"))
			hub.CaptureException(err)
		})
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
