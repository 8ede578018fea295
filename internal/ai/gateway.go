// Package ai implements the provider gateway: resolution of the effective
// provider for a document, gated execution of prompts against local and
// remote backends, and the persisted invocation trace. Document context is
// redacted before it can reach any remote backend.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// contextRadius is the number of lines taken on each side of the focus line.
const contextRadius = 12

// CoreInvoker dispatches ai.invoke to a supervised core plugin. Implemented
// by the plugin supervisor; an interface here keeps the packages decoupled.
type CoreInvoker interface {
	Invoke(ctx context.Context, plugin, method string, params any) (json.RawMessage, error)
}

// RunRequest describes one prompt execution. DocID accepts a document id or
// slug. Provider empty or "default" triggers default resolution. When
// AnchorID is set, the anchor's recorded line wins over Line.
type RunRequest struct {
	Provider string `json:"provider"`
	DocID    string `json:"doc_id"`
	AnchorID string `json:"anchor_id,omitempty"`
	Line     int    `json:"line,omitempty"`
	Prompt   string `json:"prompt"`
}

// RunResult is the outcome of a prompt execution. TraceID always refers to a
// persisted trace row.
type RunResult struct {
	TraceID  string `json:"trace_id"`
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// TestResult is the deterministic outcome of a provider connectivity check.
type TestResult struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Echo     string `json:"echo"`
}

// Gateway executes AI requests against the configured providers.
type Gateway struct {
	db      *store.DB
	invoker CoreInvoker
	client  *http.Client
	logger  *slog.Logger
}

// New creates a gateway. invoker may be nil when no plugin supervisor is
// available; providers delegated to plugins then fail closed.
func New(db *store.DB, invoker CoreInvoker, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:      db,
		invoker: invoker,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Resolve computes the effective provider for a document without executing
// anything: explicit choice wins, then the repo default, then the app-wide
// default, then "local". The result reports whether execution would be
// allowed.
func (g *Gateway) Resolve(docIDOrSlug, explicit string) (*models.ResolvedProvider, error) {
	name, err := g.resolveName(docIDOrSlug, explicit)
	if err != nil {
		return nil, err
	}

	p, err := g.db.GetProvider(name)
	if errors.Is(err, apperr.ErrNotFound) {
		// Unknown names resolve as a usable local backend rather than
		// failing resolution; execution against them still echoes.
		return &models.ResolvedProvider{
			Name: name, Kind: models.ProviderLocal, Enabled: true, HasKey: true, Allowed: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	hasKey := true
	if p.Kind == models.ProviderRemote {
		hasKey = p.HasKey
	}
	return &models.ResolvedProvider{
		Name:    p.Name,
		Kind:    p.Kind,
		Enabled: p.Enabled,
		HasKey:  hasKey,
		Allowed: p.Enabled && (p.Kind != models.ProviderRemote || hasKey),
	}, nil
}

// Run executes a prompt against the resolved provider. The document context
// around the focus line is redacted before leaving the store. The trace row
// is persisted for every executed request, including backend failures, so
// the returned trace id is always queryable.
func (g *Gateway) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	doc, err := g.db.FindDoc(req.DocID)
	if err != nil {
		return nil, err
	}

	name, err := g.resolveNameForRepo(doc.RepoID, req.Provider)
	if err != nil {
		return nil, err
	}

	line := req.Line
	if line <= 0 {
		line = 1
	}
	if req.AnchorID != "" {
		if a, err := g.db.GetAnchor(req.AnchorID); err == nil {
			line = a.Line
		}
	}
	redacted := Redact(extractContext(doc.Body, line, contextRadius))

	provider, err := g.db.GetProvider(name)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if provider != nil {
		if !provider.Enabled {
			return nil, fmt.Errorf("ai: provider %s disabled: %w", name, apperr.ErrProviderNotAllowed)
		}
		if provider.Kind == models.ProviderRemote && !provider.HasKey {
			return nil, fmt.Errorf("ai: provider %s has no key: %w", name, apperr.ErrProviderNotAllowed)
		}
	}

	text, model := g.execute(ctx, provider, name, req.Prompt, redacted)

	traceID := uuid.NewString()
	if err := g.persistTrace(traceID, doc.RepoID, doc.ID, req.AnchorID, name, req.Prompt, redacted, text, model); err != nil {
		return nil, err
	}
	return &RunResult{TraceID: traceID, Text: text, Provider: name, Model: model}, nil
}

// Test runs a deterministic connectivity check against one provider. It is
// never attributed to a document and leaves no trace row.
func (g *Gateway) Test(name, prompt string) (*TestResult, error) {
	if prompt == "" {
		prompt = "ping"
	}
	p, err := g.db.GetProvider(name)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, fmt.Errorf("ai: provider %s disabled: %w", name, apperr.ErrProviderNotAllowed)
	}
	if p.Kind == models.ProviderRemote && !p.HasKey {
		return nil, fmt.Errorf("ai: provider %s has no key: %w", name, apperr.ErrProviderNotAllowed)
	}
	return &TestResult{Provider: name, OK: true, Echo: prompt}, nil
}

// execute runs the prompt against the chosen backend. Backend failures fold
// into the response text so the trace captures them; only gating rejects.
func (g *Gateway) execute(ctx context.Context, provider *models.Provider, name, prompt, redacted string) (text, model string) {
	switch {
	case provider != nil && provider.Plugin != "":
		return g.invokePlugin(ctx, provider, name, prompt, redacted)
	case provider != nil && provider.Kind == models.ProviderRemote:
		key, err := g.db.ProviderKey(name)
		if err == nil {
			text, model, err = g.callOpenRouter(ctx, key, provider.Model, prompt, redacted)
		}
		if err != nil {
			g.logger.Warn("remote provider call failed", "provider", name, "error", err)
			return fmt.Sprintf("[%s:error:%v]\nPrompt: %s\n---\n%s", name, err, prompt, redacted), ""
		}
		return text, model
	default:
		return fmt.Sprintf("[%s]\nPrompt: %s\n---\n%s", name, prompt, redacted), ""
	}
}

func (g *Gateway) invokePlugin(ctx context.Context, provider *models.Provider, name, prompt, redacted string) (string, string) {
	if g.invoker == nil {
		return fmt.Sprintf("[%s:error:no plugin supervisor]\nPrompt: %s\n---\n%s", name, prompt, redacted), ""
	}
	raw, err := g.invoker.Invoke(ctx, provider.Plugin, "ai.invoke", map[string]string{
		"prompt":  prompt,
		"context": redacted,
	})
	if err != nil {
		g.logger.Warn("plugin provider call failed", "provider", name, "plugin", provider.Plugin, "error", err)
		return fmt.Sprintf("[%s:error:%v]\nPrompt: %s\n---\n%s", name, err, prompt, redacted), ""
	}
	var out struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Text == "" {
		return string(raw), ""
	}
	return out.Text, out.Model
}

func (g *Gateway) persistTrace(traceID, repoID, docID, anchorID, provider, prompt, redacted, text, model string) error {
	reqJSON, _ := json.Marshal(map[string]string{"prompt": prompt, "context": redacted})
	respJSON, _ := json.Marshal(map[string]string{"text": text, "provider": provider, "model": model})
	return g.db.InsertTrace(traceID, repoID, docID, anchorID, provider, string(reqJSON), string(respJSON))
}

// resolveName resolves the provider name for a request that may reference a
// document by id or slug, or no document at all.
func (g *Gateway) resolveName(docIDOrSlug, explicit string) (string, error) {
	if explicit != "" && explicit != "default" {
		return explicit, nil
	}
	repoID := ""
	if docIDOrSlug != "" {
		doc, err := g.db.FindDoc(docIDOrSlug)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return "", err
			}
		} else {
			repoID = doc.RepoID
		}
	}
	return g.defaultName(repoID)
}

func (g *Gateway) resolveNameForRepo(repoID, explicit string) (string, error) {
	if explicit != "" && explicit != "default" {
		return explicit, nil
	}
	return g.defaultName(repoID)
}

// defaultName walks the default chain: repo setting, then the app-wide
// default_provider setting, then "local".
func (g *Gateway) defaultName(repoID string) (string, error) {
	if repoID != "" {
		repo, err := g.db.GetRepo(repoID)
		if err == nil && repo.Settings.DefaultProvider != "" {
			return repo.Settings.DefaultProvider, nil
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return "", err
		}
	}
	global, err := g.db.GetSetting("default_provider")
	if err != nil {
		return "", err
	}
	if global != "" {
		return global, nil
	}
	return "local", nil
}

// extractContext returns the lines within radius of the 1-based focus line.
// A line beyond the end clamps to the document tail.
func extractContext(body string, line, radius int) string {
	lines := strings.Split(body, "\n")
	if len(lines) == 0 {
		return ""
	}
	idx := line - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(lines) {
		idx = len(lines) - 1
	}
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius + 1
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}
