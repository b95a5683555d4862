package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/ledger"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

type classifyRequest struct {
	ImageData string `json:"image_data"`
}

type detectionResponse struct {
	Label      string         `json:"label"`
	Category   waste.Category `json:"category"`
	Confidence float32        `json:"confidence"`
	X          float32        `json:"x"`
	Y          float32        `json:"y"`
	Width      float32        `json:"width"`
	Height     float32        `json:"height"`
}

type classifyResponse struct {
	classifier.Result
	Detections []detectionResponse `json:"detections,omitempty"`
}

type weightRequest struct {
	Category string   `json:"category"`
	Weight   *float64 `json:"weight"`
}

type categoryResponse struct {
	Name       waste.Category `json:"name"`
	Recyclable bool           `json:"recyclable"`
	Fallback   bool           `json:"fallback"`
}

type categoriesResponse struct {
	Version    string             `json:"version"`
	Categories []categoryResponse `json:"categories"`
}

type historyResponse struct {
	Classifications []history.Classification `json:"classifications"`
	Counts          map[waste.Category]int   `json:"counts"`
	Weights         []history.WeightEvent    `json:"weights"`
}

func newClassifyResponse(res classifier.Result) classifyResponse {
	out := classifyResponse{Result: res}
	for _, d := range res.Detections {
		dr := detectionResponse{Label: d.SourceLabel, Category: d.Category, Confidence: d.Confidence}
		if d.Box != nil {
			dr.X, dr.Y, dr.Width, dr.Height = d.Box.XYWH()
		}
		out.Detections = append(out.Detections, dr)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]any{
		"status":  "OK",
		"message": "Smart Waste Bin API is running",
		"models":  s.opts.Models,
	}, http.StatusOK)
}

// handleClassify answers 400 only for a missing payload. Undecodable images and model failures
// come back as a 200 with the error inside the result.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.ImageData == "" {
		respondError(w, "No image data provided", http.StatusBadRequest)
		return
	}

	res := s.engine.ClassifyPayload(r.Context(), req.ImageData)
	s.recordClassification(r.Context(), history.SourceAPI, "", res)
	respondJSON(w, newClassifyResponse(res), http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		respondError(w, "No image data provided", http.StatusBadRequest)
		return
	}

	res := s.engine.ClassifyBytes(r.Context(), data)
	s.recordClassification(r.Context(), history.SourceUpload, header.Filename, res)
	respondJSON(w, newClassifyResponse(res), http.StatusOK)
}

func (s *Server) handleUpdateWeight(w http.ResponseWriter, r *http.Request) {
	var req weightRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Category == "" || req.Weight == nil {
		respondError(w, "category and weight are required", http.StatusBadRequest)
		return
	}

	summary, err := s.ledger.AddSummary(req.Category, *req.Weight)
	switch {
	case errors.Is(err, waste.ErrUnknownCategory), errors.Is(err, ledger.ErrInvalidWeight):
		respondError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		s.logger.Error("weight update failed", "error", err)
		respondError(w, "internal server error", http.StatusInternalServerError)
	default:
		category, _ := s.ledger.Taxonomy().Lookup(req.Category)
		s.recordWeight(r.Context(), history.WeightEvent{
			Kind:        history.KindAdd,
			Category:    category,
			Kg:          *req.Weight,
			TotalWeight: summary.TotalWeight,
		})
		respondJSON(w, summary, http.StatusOK)
	}
}

func (s *Server) handleResetWeights(w http.ResponseWriter, r *http.Request) {
	summary := s.ledger.ResetSummary()
	s.recordWeight(r.Context(), history.WeightEvent{Kind: history.KindReset})
	respondJSON(w, summary, http.StatusOK)
}

func (s *Server) handleWeightSummary(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, s.ledger.Summary(), http.StatusOK)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	tax := s.engine.Taxonomy()
	out := categoriesResponse{Version: tax.Version()}
	for _, c := range tax.Categories() {
		out.Categories = append(out.Categories, categoryResponse{
			Name:       c,
			Recyclable: tax.Recyclable(c),
			Fallback:   c == tax.Fallback(),
		})
	}
	respondJSON(w, out, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, s.profiler.GetCurrentStats(), http.StatusOK)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		respondError(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	ctx := r.Context()
	var (
		out historyResponse
		err error
	)
	if out.Classifications, err = s.opts.History.Recent(ctx, limit); err == nil {
		if out.Counts, err = s.opts.History.Counts(ctx); err == nil {
			out.Weights, err = s.opts.History.Weights(ctx, limit)
		}
	}
	if err != nil {
		s.logger.Error("reading history failed", "error", err)
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, out, http.StatusOK)
}

// recordClassification logs to the history store. Failures are logged and never fail the request.
func (s *Server) recordClassification(ctx context.Context, source, subject string, res classifier.Result) {
	entry := history.FromResult(source, subject, s.engine.Mode(), res)
	if err := s.opts.History.RecordClassification(ctx, entry); err != nil {
		s.logger.Warn("recording classification failed", "error", err)
	}
}

func (s *Server) recordWeight(ctx context.Context, ev history.WeightEvent) {
	if err := s.opts.History.RecordWeight(ctx, ev); err != nil {
		s.logger.Warn("recording weight event failed", "error", err)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		respondError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
