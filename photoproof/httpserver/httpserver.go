// Package httpserver exposes the verification engine to request-handling
// collaborators. It owns transport concerns only; the engine never performs
// its own persistence or network I/O.
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mhlotto/go-photoproof/photoproof"
)

const (
	mediaTypeSubmission  = "application/photoproof-submission+cbor"
	mediaTypeProblemJSON = "application/problem+json"

	// maxSubmission guards the demo server against oversized uploads.
	maxSubmission = 50 << 20
)

// HandlerOptions wires an engine into the HTTP surface.
type HandlerOptions struct {
	Engine          *photoproof.Engine
	Results         *ResultLog
	Logger          *log.Logger
	AuthFunc        func(*http.Request) error
	ServiceEndpoint string
}

// NewMux wires up the verification routes.
func NewMux(opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Results == nil {
		opts.Results = NewResultLog()
	}
	mux := http.NewServeMux()
	mux.Handle("/.well-known/photoproof", configHandler(opts, logger))
	mux.Handle("/verifications", verificationsHandler(opts, logger))
	mux.Handle("/verifications/", verificationStatusHandler(opts, logger))
	return mux
}

func configHandler(opts HandlerOptions, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		cfg := opts.Engine.Config()
		descriptor := map[string]any{
			"serviceEndpoint":    opts.ServiceEndpoint,
			"tileSize":           cfg.TileSize,
			"authenticThreshold": cfg.AuthenticThreshold,
			"weights":            cfg.Weights,
			"submissionMediaType": mediaTypeSubmission,
		}

		payload, err := json.Marshal(descriptor)
		if err != nil {
			logger.Printf("config encode error: %v", err)
			writeProblem(w, http.StatusInternalServerError, "encode configuration", err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func verificationsHandler(opts HandlerOptions, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := authorize(opts, r); err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, mediaTypeSubmission) && !strings.HasPrefix(ct, "application/cbor") {
			writeProblem(w, http.StatusUnsupportedMediaType, "invalid content type", "expected "+mediaTypeSubmission)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmission+1))
		if err != nil {
			logger.Printf("submission read error: %v", err)
			writeProblem(w, http.StatusBadRequest, "read body", err.Error())
			return
		}
		defer r.Body.Close()
		if len(body) > maxSubmission {
			writeProblem(w, http.StatusRequestEntityTooLarge, "payload too large", "limit 50MiB")
			return
		}

		var sub photoproof.Submission
		if err := cbor.Unmarshal(body, &sub); err != nil {
			logger.Printf("submission unmarshal error: %v", err)
			writeProblem(w, http.StatusBadRequest, "parse submission", err.Error())
			return
		}
		if len(sub.Image) == 0 {
			writeProblem(w, http.StatusBadRequest, "missing image", "submission image is empty")
			return
		}

		result := opts.Engine.Verify(sub.Image, sub.Attestation, sub.Metadata)
		opts.Results.Record(result)

		logger.Printf("verified submission id=%s verdict=%s confidence=%.2f bytes=%d",
			result.ID, result.Verdict, result.Confidence, len(sub.Image))

		payload, err := json.Marshal(result)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "encode result", err.Error())
			return
		}

		w.Header().Set("Location", "/verifications/"+result.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(payload)
	}
}

func verificationStatusHandler(opts HandlerOptions, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := authorize(opts, r); err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		id, err := extractID(r.URL.Path, "/verifications/")
		if err != nil {
			writeProblem(w, http.StatusNotFound, "missing id", err.Error())
			return
		}

		result, ok := opts.Results.Lookup(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "result not found", "no verification with that id")
			logger.Printf("result not found id=%s", id)
			return
		}

		payload, err := json.Marshal(result)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "encode result", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		logger.Printf("result replayed id=%s verdict=%s", result.ID, result.Verdict)
	}
}

func extractID(path, prefix string) (string, error) {
	if !strings.HasPrefix(path, prefix) {
		return "", errors.New("invalid path")
	}
	id := strings.TrimPrefix(path, prefix)
	if id == "" {
		return "", errors.New("empty id")
	}
	if strings.Contains(id, "/") {
		return "", errors.New("unexpected extra path segments")
	}
	return id, nil
}

// writeProblem emits problem+json for transport-level errors. Fraud verdicts
// never travel this path; they are ordinary results.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", mediaTypeProblemJSON)
	w.WriteHeader(status)

	payload := map[string]any{
		"type":   "about:blank",
		"title":  title,
		"detail": detail,
		"status": status,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}

func authorize(opts HandlerOptions, r *http.Request) error {
	if opts.AuthFunc == nil {
		return nil
	}
	return opts.AuthFunc(r)
}
