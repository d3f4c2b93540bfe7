// Package discover probes common local inference servers so llamsh works
// out of the box without a --port flag.
package discover

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Ports commonly used by local OpenAI-compatible servers: llama.cpp and
// generic proxies (8080), Ollama (11434), vLLM (8000), assorted dev servers
// (5000), LM Studio (1234).
var DefaultPorts = []int{8080, 11434, 8000, 5000, 1234}

const probeTimeout = time.Second

// Server is a discovered inference endpoint.
type Server struct {
	BaseURL string
	Model   string // first advertised model id, may be empty
}

// DefaultCandidates expands DefaultPorts into localhost base URLs.
func DefaultCandidates() []string {
	urls := make([]string, 0, len(DefaultPorts))
	for _, port := range DefaultPorts {
		urls = append(urls, fmt.Sprintf("http://localhost:%d", port))
	}
	return urls
}

// Discover probes candidates in order and returns the first server that
// answers /v1/models. Candidates defaults to DefaultCandidates.
func Discover(ctx context.Context, candidates []string, logger *slog.Logger) (Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	client := &http.Client{Timeout: probeTimeout}

	for _, base := range candidates {
		base = strings.TrimRight(base, "/")
		srv, err := probe(ctx, client, base)
		if err != nil {
			logger.Debug("probe failed", "base_url", base, "error", err)
			continue
		}
		logger.Info("discovered inference server", "base_url", base, "model", srv.Model)
		return srv, nil
	}
	return Server{}, fmt.Errorf("no inference server found on ports %v; start one or pass --port/--base-url", DefaultPorts)
}

func probe(ctx context.Context, client *http.Client, base string) (Server, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return Server{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Server{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Server{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Server{}, err
	}
	return Server{
		BaseURL: base,
		Model:   gjson.GetBytes(body, "data.0.id").String(),
	}, nil
}
