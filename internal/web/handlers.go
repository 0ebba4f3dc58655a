package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/sensor"
	"github.com/roman-kulish/ismscope/internal/storage"
)

// maxBodySize caps request bodies; a selection of every buffered point fits easily.
const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// ConfigRequest changes the generation settings. Interval is in seconds.
type ConfigRequest struct {
	Rate     int     `json:"rate"`
	Interval float64 `json:"interval"`
}

// SensorResponse describes the simulated sensor.
type SensorResponse struct {
	sensor.Limits
	Views  []plot.View              `json:"views"`
	Layout map[plot.View]plot.Layout `json:"layout"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.command("start")
	s.controller.Start()
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.command("stop")
	s.controller.Stop()
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.command("clear")
	s.controller.Clear()
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.command("config")

	var req ConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding config: %w", err))
		return
	}

	if math.IsNaN(req.Interval) || math.IsInf(req.Interval, 0) {
		s.writeError(w, http.StatusBadRequest, errors.New("interval must be a finite number of seconds"))
		return
	}

	interval := time.Duration(req.Interval * float64(time.Second))
	if err := s.controller.Configure(req.Rate, interval); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	s.command("select")

	view, err := plot.ParseView(r.PathValue("view"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("reading selection: %w", err))
		return
	}

	// an empty body deselects
	var event selection.Event
	if len(bytes.TrimSpace(body)) > 0 {
		if err = json.Unmarshal(body, &event); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", selection.ErrMalformedEvent, err))
			return
		}
	}

	if err = s.controller.Select(view, event); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}

	view, err := plot.ParseView(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	chart := s.controller.Snapshot().Chart(view)

	var buf bytes.Buffer
	if err = s.renderer.WritePNG(&buf, &chart, nil); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("rendering %s: %w", view, err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	layouts := make(map[plot.View]plot.Layout, len(plot.Views))
	for _, view := range plot.Views {
		layouts[view] = plot.Empty(view).Layout
	}

	s.writeJSON(w, http.StatusOK, SensorResponse{
		Limits: sensor.DefaultLimits(),
		Views:  plot.Views,
		Layout: layouts,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, errors.New("recording is disabled"))
		return
	}

	sessions, err := s.archive.Sessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("listing sessions: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, errors.New("recording is disabled"))
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id %q", r.PathValue("id")))
		return
	}

	opts, err := readOptions(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	samples, err := s.archive.ReadSamples(r.Context(), id, opts...)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, storage.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("reading samples: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, samples)
}

// readOptions turns the minFreq, maxFreq, batch and limit query parameters
// into storage read options. batch is a batch number or "last".
func readOptions(r *http.Request) ([]storage.ReadOption, error) {
	q := r.URL.Query()
	var opts []storage.ReadOption

	minFreq, maxFreq := q.Get("minFreq"), q.Get("maxFreq")
	if minFreq != "" || maxFreq != "" {
		lo, err := parseFloat("minFreq", minFreq, sensor.FreqMin)
		if err != nil {
			return nil, err
		}
		hi, err := parseFloat("maxFreq", maxFreq, sensor.FreqMax)
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithFreqRange(lo, hi))
	}

	switch batch := q.Get("batch"); batch {
	case "":
	case "last":
		opts = append(opts, storage.WithLastBatch())
	default:
		n, err := strconv.ParseInt(batch, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid batch %q", batch)
		}
		opts = append(opts, storage.WithBatch(n))
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid limit %q", limit)
		}
		opts = append(opts, storage.WithLimit(n))
	}

	return opts, nil
}

func parseFloat(name, value string, fallback float64) (float64, error) {
	if value == "" {
		return fallback, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return f, nil
}
