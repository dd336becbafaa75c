// Package filedrop provides a drop-directory oracle for external
// evaluation pipelines.
//
// Evaluate writes one request file per batch into an exchange
// directory and blocks until an external process drops the matching
// response file. This is the integration point for real experiments:
// a lab queue, a DFT cluster script or a human picks up
// <id>.request.json, evaluates the candidates and writes
// <id>.response.json next to it. Responses must be written atomically
// (write to a temp name, then rename), otherwise a partial file may be
// read.
package filedrop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// Ensure Experiment implements the interface.
var _ driven.Experiment = (*Experiment)(nil)

// Experiment exchanges evaluation batches through a directory.
type Experiment struct {
	dir string
}

// request is the on-disk batch format handed to the external evaluator.
type request struct {
	ID   string       `json:"id"`
	Rows []domain.Row `json:"rows"`
}

// responseEntry is one evaluated candidate in the response file.
type responseEntry struct {
	Label float64 `json:"label"`
	Err   string  `json:"error,omitempty"`
}

// New creates a filedrop experiment using dir as the exchange
// directory, creating it if needed.
func New(dir string) (*Experiment, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty exchange directory", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating exchange directory: %w", err)
	}
	return &Experiment{dir: dir}, nil
}

// Evaluate writes the batch as a request file and waits for the
// response file, honouring ctx cancellation. Candidates missing from
// the response come back as per-candidate failures.
func (e *Experiment) Evaluate(ctx context.Context, rows []domain.Row) (map[string]domain.Result, error) {
	id := uuid.NewString()
	requestPath := filepath.Join(e.dir, id+".request.json")
	responsePath := filepath.Join(e.dir, id+".response.json")

	// Start watching before writing the request so a fast responder
	// cannot slip between the write and the watch.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(e.dir); err != nil {
		return nil, fmt.Errorf("watching exchange directory: %w", err)
	}

	if err := e.writeRequest(requestPath, request{ID: id, Rows: rows}); err != nil {
		return nil, err
	}
	logger.Info("wrote experiment request %s, waiting for response", requestPath)

	entries, err := e.awaitResponse(ctx, watcher, responsePath)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(requestPath); err != nil {
		logger.Warn("could not remove request file %s: %v", requestPath, err)
	}
	if err := os.Remove(responsePath); err != nil {
		logger.Warn("could not remove response file %s: %v", responsePath, err)
	}

	results := make(map[string]domain.Result, len(rows))
	for _, row := range rows {
		entry, ok := entries[row.Key]
		if !ok {
			results[row.Key] = domain.Result{
				Key: row.Key,
				Err: "candidate missing from response",
			}
			continue
		}
		results[row.Key] = domain.Result{Key: row.Key, Label: entry.Label, Err: entry.Err}
	}
	return results, nil
}

// writeRequest writes the request file atomically so the external
// evaluator never observes a partial batch.
func (e *Experiment) writeRequest(path string, req request) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".request-*")
	if err != nil {
		return fmt.Errorf("creating request file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing request: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing request file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing request: %w", err)
	}
	return nil
}

// awaitResponse blocks until the response file appears and parses it.
func (e *Experiment) awaitResponse(
	ctx context.Context,
	watcher *fsnotify.Watcher,
	responsePath string,
) (map[string]responseEntry, error) {
	// The response may already exist if the evaluator beat us here.
	if entries, ok, err := readResponse(responsePath); err != nil {
		return nil, err
	} else if ok {
		return entries, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil, fmt.Errorf("watcher closed before response arrived")
			}
			if event.Name != responsePath {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			entries, ok, err := readResponse(responsePath)
			if err != nil {
				return nil, err
			}
			if ok {
				return entries, nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("watcher closed before response arrived")
			}
			return nil, fmt.Errorf("watching for response: %w", err)
		}
	}
}

// readResponse parses the response file. The second return value is
// false when the file does not exist yet.
func readResponse(path string) (map[string]responseEntry, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading response: %w", err)
	}

	var entries map[string]responseEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("parsing response %s: %w", path, err)
	}
	return entries, true, nil
}
