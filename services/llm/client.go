// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the resilient generation client: it resolves a Gemini API
// key, dispatches prompts through a Transport with quota-aware retries and
// falls back to deterministic offline templates.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultModel is used when neither Options.Model nor GEMINI_MODEL is set.
	DefaultModel = "gemini-1.5-flash"

	// ModelEnv overrides the default model.
	ModelEnv = "GEMINI_MODEL"

	// DefaultTimeout bounds a single transport call.
	DefaultTimeout = 60 * time.Second

	// SystemPrompt is prepended to every request.
	SystemPrompt = "You are a helpful assistant that specializes in writing test code. " +
		"Generate high quality unit tests with proper mocking and test coverage."
)

// Options configures a Client. Start from DefaultOptions; zero values of
// the injectable fields select production implementations.
type Options struct {
	APIKey string
	Model  string

	// Timeout bounds each transport call.
	Timeout time.Duration

	// MaxRetries overrides the profile's attempt count when > 0.
	MaxRetries int

	// Interactive allows prompting for a key on the first Generate call.
	Interactive bool

	StrictQuota bool
	Offline     bool

	// RequestDelay spaces consecutive dispatches. Zero disables pacing.
	RequestDelay time.Duration

	// ConfigPaths are searched for a stored key; SavePath receives a key
	// entered interactively. Empty SavePath uses the first config path.
	ConfigPaths []string
	SavePath    string

	Transport TransportFactory
	Prompter  Prompter
	Sleep     func(ctx context.Context, d time.Duration) error
	Rand      func() float64
	Getenv    func(string) string
	Logger    *slog.Logger
}

// DefaultOptions returns interactive, default-profile options.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		Interactive: true,
		ConfigPaths: append([]string(nil), DefaultConfigPaths...),
	}
}

// Client turns prompts into model output.
//
// Description:
//
//	The credential is resolved at construction without terminal I/O. When
//	only an interactive prompt could supply it, the prompt is deferred to
//	the first Generate call. Requests run one at a time through a bounded
//	retry loop whose waits are chosen by the failure kind.
//
// Thread Safety: Client is safe for concurrent use, but Generate calls are
// serialized while an interactive prompt is open.
type Client struct {
	mu        sync.Mutex
	state     CredentialState
	key       *secretKey
	model     string
	strict    bool
	offline   bool
	transport Transport

	factory    TransportFactory
	maxRetries int
	timeout    time.Duration
	limiter    *rate.Limiter
	savePath   string
	prompter   Prompter
	sleep      func(ctx context.Context, d time.Duration) error
	rand       func() float64
	logger     *slog.Logger
}

// NewClient creates a Client.
//
// Outputs:
//   - *Client: Ready for Generate.
//   - error: *CredentialError with State Fatal when no key exists, the
//     client is non-interactive and not offline; or a transport
//     construction error.
func NewClient(opts Options) (*Client, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	c := &Client{
		model:      strings.TrimSpace(opts.Model),
		strict:     opts.StrictQuota,
		offline:    opts.Offline,
		factory:    opts.Transport,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		savePath:   opts.SavePath,
		prompter:   opts.Prompter,
		sleep:      opts.Sleep,
		rand:       opts.Rand,
		logger:     opts.Logger,
	}
	if c.model == "" {
		c.model = strings.TrimSpace(getenv(ModelEnv))
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.factory == nil {
		c.factory, _ = NewTransportFactory(TransportSDK, "")
	}
	if c.prompter == nil {
		c.prompter = TerminalPrompter{}
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RequestDelay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.RequestDelay), 1)
	}
	paths := opts.ConfigPaths
	if c.savePath == "" {
		if len(paths) > 0 {
			c.savePath = paths[0]
		} else {
			c.savePath = DefaultConfigPaths[0]
		}
	}

	outcome := ResolveCredential(opts.APIKey, getenv, paths, opts.Interactive)
	switch outcome.Kind {
	case OutcomeResolved:
		if err := c.initTransportLocked(context.Background(), outcome.Key); err != nil {
			return nil, err
		}
		c.state = CredentialResolved
		c.logger.Info("Gemini credential resolved",
			slog.String("source", outcome.Source),
			slog.String("model", c.model))
	case OutcomeNeedsInteractive:
		c.state = CredentialPendingInteractive
	case OutcomeFatal:
		c.state = CredentialFatal
		if !c.offline {
			return nil, &CredentialError{
				State:   CredentialFatal,
				Message: fmt.Sprintf("no API key found (set %s, pass --api-key or add apiKey to %s)", APIKeyEnv, c.savePath),
			}
		}
	}
	return c, nil
}

// Generate sends prompt to the model and returns the raw response text.
//
// Outputs:
//   - string: Non-empty model output, or an offline template.
//   - error: *CredentialError, *ExhaustedRetriesError or a context error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	offline, strict, model := c.offline, c.strict, c.model
	c.mu.Unlock()

	ctx, span := startGenerateSpan(ctx, model, strict, offline, len(prompt))

	if offline {
		c.logger.Debug("offline mode, generating template without a model call")
		recordCallMetrics("offline", 0, nil)
		endGenerateSpan(span, 0, nil)
		return OfflineTemplate(prompt), nil
	}

	transport, err := c.ensureTransport(ctx)
	if err != nil {
		endGenerateSpan(span, 0, err)
		return "", err
	}

	profile := DefaultProfile()
	if strict {
		profile = StrictQuotaProfile()
	}
	if c.maxRetries > 0 {
		profile.MaxRetries = c.maxRetries
	}

	req := Request{
		Model:        model,
		SystemPrompt: SystemPrompt,
		Prompt:       profile.Trim(prompt),
		Params:       profile.Params,
	}
	if len(req.Prompt) != len(prompt) {
		c.logger.Info("prompt trimmed to reduce token usage",
			slog.Int("original_len", len(prompt)),
			slog.Int("trimmed_len", len(req.Prompt)))
	}

	out, attempts, err := c.dispatch(ctx, transport, profile, req)
	endGenerateSpan(span, attempts, err)
	return out, err
}

func (c *Client) dispatch(ctx context.Context, transport Transport, profile Profile, req Request) (string, int, error) {
	var last error
	for attempt := 1; attempt <= profile.MaxRetries; attempt++ {
		if wait := profile.PreWait(c.rand()); wait > 0 {
			c.logger.Info("waiting before request",
				slog.Duration("wait", wait),
				slog.Int("attempt", attempt))
			if err := c.sleep(ctx, wait); err != nil {
				return "", attempt - 1, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", attempt - 1, err
			}
		}

		out, err := c.call(ctx, transport, req)
		if err == nil {
			return out, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempt, ctxErr
		}

		kind, typed := Classify(err)
		last = typed
		c.logger.Warn("generation attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", profile.MaxRetries),
			slog.String("kind", kind.String()),
			slog.String("error", SafeLogString(typed.Error())))

		if attempt == profile.MaxRetries {
			break
		}
		delay := StrategyFor(kind, profile, c.rand).Delay(typed, attempt)
		recordRetry(kind)
		c.logger.Info("retrying after backoff", slog.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return "", attempt, err
		}
	}
	return "", profile.MaxRetries, &ExhaustedRetriesError{Attempts: profile.MaxRetries, Last: last}
}

func (c *Client) call(ctx context.Context, transport Transport, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := transport.Generate(callCtx, req)
	duration := time.Since(start)
	if err == nil && strings.TrimSpace(out) == "" {
		err = &EmptyResponseError{Duration: duration, PromptLength: len(req.Prompt), Model: req.Model}
	}
	recordCallMetrics(transport.Name(), duration, err)
	return out, err
}

// ensureTransport returns the transport, prompting for a key first if the
// credential is still pending.
func (c *Client) ensureTransport(ctx context.Context) (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CredentialResolved:
		return c.transport, nil
	case CredentialPendingInteractive:
	default:
		return nil, &CredentialError{State: CredentialFatal, Message: "no API key configured"}
	}

	key, err := c.prompter.PromptAPIKey(ctx)
	if err != nil {
		return nil, &CredentialError{State: CredentialPendingInteractive, Message: err.Error()}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &CredentialError{State: CredentialPendingInteractive, Message: "empty API key entered"}
	}
	if err := c.initTransportLocked(ctx, key); err != nil {
		return nil, err
	}
	c.state = CredentialResolved

	save, err := c.prompter.Confirm(ctx, fmt.Sprintf("Save this API key to %s?", c.savePath))
	if err != nil {
		c.logger.Warn("could not read save confirmation", slog.String("error", err.Error()))
	} else if save {
		if err := SaveCredential(c.savePath, key); err != nil {
			c.logger.Warn("failed to save API key", slog.String("error", SafeLogString(err.Error())))
		} else {
			c.logger.Info("API key saved", slog.String("path", c.savePath))
		}
	}
	return c.transport, nil
}

// initTransportLocked builds a transport for key. Callers hold mu or own c
// exclusively.
func (c *Client) initTransportLocked(ctx context.Context, key string) error {
	t, err := c.factory(ctx, key)
	if err != nil {
		return fmt.Errorf("initializing transport: %w", err)
	}
	c.transport = t
	c.key = newSecretKey(key)
	return nil
}

// SetModel switches the model and rebuilds the transport immediately.
func (c *Client) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	if c.state != CredentialResolved {
		return nil
	}
	key, err := c.key.reveal()
	if err != nil {
		return err
	}
	return c.initTransportLocked(context.Background(), key)
}

// SetAPIKey replaces the credential and rebuilds the transport immediately.
func (c *Client) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &CredentialError{State: c.State(), Message: "empty API key"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.initTransportLocked(context.Background(), key); err != nil {
		return err
	}
	c.state = CredentialResolved
	return nil
}

// SetStrictQuota toggles the strict-quota profile.
func (c *Client) SetStrictQuota(enabled bool) {
	c.mu.Lock()
	c.strict = enabled
	c.mu.Unlock()
}

// SetOffline toggles offline templates.
func (c *Client) SetOffline(enabled bool) {
	c.mu.Lock()
	c.offline = enabled
	c.mu.Unlock()
}

// Model returns the current model name.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// StrictQuota reports whether the strict-quota profile is active.
func (c *Client) StrictQuota() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strict
}

// State returns the credential state.
func (c *Client) State() CredentialState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
