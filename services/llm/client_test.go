// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReply struct {
	text string
	err  error
}

// fakeTransport replays scripted replies and records every request.
type fakeTransport struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []Request
	key      string
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Generate(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

type fakeFactory struct {
	transports []*fakeTransport
	replies    []scriptedReply
	err        error
}

func (f *fakeFactory) build(_ context.Context, key string) (Transport, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{replies: f.replies, key: key}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) last() *fakeTransport {
	return f.transports[len(f.transports)-1]
}

type fakePrompter struct {
	key       string
	keyErr    error
	confirm   bool
	keyCalls  int
	questions []string
}

func (p *fakePrompter) PromptAPIKey(context.Context) (string, error) {
	p.keyCalls++
	return p.key, p.keyErr
}

func (p *fakePrompter) Confirm(_ context.Context, q string) (bool, error) {
	p.questions = append(p.questions, q)
	return p.confirm, nil
}

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func noEnv(string) string { return "" }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(factory *fakeFactory, sleeper *recordingSleeper) Options {
	opts := DefaultOptions()
	opts.APIKey = "test-key"
	opts.ConfigPaths = nil
	opts.Transport = factory.build
	opts.Sleep = sleeper.sleep
	opts.Rand = func() float64 { return 0 }
	opts.Getenv = noEnv
	opts.Logger = quietLogger()
	return opts
}

func TestNewClient_DefaultsAndResolvedKey(t *testing.T) {
	factory := &fakeFactory{}
	c, err := NewClient(testOptions(factory, &recordingSleeper{}))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, CredentialResolved, c.State())
	require.Len(t, factory.transports, 1)
	assert.Equal(t, "test-key", factory.last().key)
}

func TestNewClient_ModelFromEnv(t *testing.T) {
	opts := testOptions(&fakeFactory{}, &recordingSleeper{})
	opts.Getenv = func(k string) string {
		if k == ModelEnv {
			return "gemini-2.0-flash"
		}
		return ""
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.Model())
}

func TestNewClient_NonInteractiveWithoutKeyIsFatal(t *testing.T) {
	opts := testOptions(&fakeFactory{}, &recordingSleeper{})
	opts.APIKey = ""
	opts.Interactive = false

	_, err := NewClient(opts)
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.True(t, credErr.IsFatal())
}

func TestNewClient_OfflineNeedsNoKey(t *testing.T) {
	factory := &fakeFactory{}
	opts := testOptions(factory, &recordingSleeper{})
	opts.APIKey = ""
	opts.Interactive = false
	opts.Offline = true

	c, err := NewClient(opts)
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "Component name: Cart\nclass Cart {}")
	require.NoError(t, err)
	assert.Contains(t, out, "new Cart()")
	assert.Empty(t, factory.transports)
}

func TestNewClient_TransportFactoryError(t *testing.T) {
	opts := testOptions(&fakeFactory{err: errors.New("boom")}, &recordingSleeper{})
	_, err := NewClient(opts)
	assert.ErrorContains(t, err, "boom")
}

func TestGenerate_SendsSystemPromptAndDefaultParams(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{{text: "```js\ntest('x', () => {});\n```"}}}
	sleeper := &recordingSleeper{}
	c, err := NewClient(testOptions(factory, sleeper))
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "write tests")
	require.NoError(t, err)
	assert.Contains(t, out, "test('x'")

	req := factory.last().requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, SystemPrompt+"\n\nwrite tests", req.FullText())
	assert.Equal(t, DefaultProfile().Params, req.Params)
	assert.Empty(t, sleeper.waits)
}

func TestGenerate_RetriesTransientWithExponentialBackoff(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{
		{err: errors.New("connection reset")},
		{text: "   "},
		{text: "ok"},
	}}
	sleeper := &recordingSleeper{}
	c, err := NewClient(testOptions(factory, sleeper))
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, sleeper.waits)
}

func TestGenerate_QuotaBackoffUsesSuggestedDelay(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{
		{err: errors.New(`status 429: {"retryDelay": "20s"}`)},
		{text: "ok"},
	}}
	sleeper := &recordingSleeper{}
	c, err := NewClient(testOptions(factory, sleeper))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{35 * time.Second}, sleeper.waits)
}

func TestGenerate_ExhaustedRetriesNoSleepAfterLastAttempt(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{
		{err: errors.New("e1")},
		{err: errors.New("e2")},
		{err: errors.New("e3")},
	}}
	sleeper := &recordingSleeper{}
	c, err := NewClient(testOptions(factory, sleeper))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorContains(t, exhausted.Last, "e3")
	assert.Len(t, sleeper.waits, 2)
	assert.Len(t, factory.last().requests, 3)
}

func TestGenerate_MaxRetriesOverride(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{{err: errors.New("e1")}}}
	opts := testOptions(factory, &recordingSleeper{})
	opts.MaxRetries = 1

	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestGenerate_StrictQuotaProfile(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{
		{err: errors.New("server unavailable")},
		{text: "ok"},
	}}
	sleeper := &recordingSleeper{}
	opts := testOptions(factory, sleeper)
	opts.StrictQuota = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	long := strings.Repeat("x", 3000)
	_, err = c.Generate(context.Background(), long)
	require.NoError(t, err)

	// pre-wait, backoff, pre-wait
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 30 * time.Second}, sleeper.waits)

	req := factory.last().requests[0]
	assert.Equal(t, StrictQuotaProfile().Params, req.Params)
	assert.Contains(t, req.Prompt, "[Content trimmed to reduce token usage]")
	assert.Len(t, req.Prompt, 1200+len(trimMarker))
}

func TestGenerate_StrictQuotaExhaustsOnPersistentQuotaErrors(t *testing.T) {
	quota := errors.New(`status 429 RESOURCE_EXHAUSTED: {"retryDelay": "10s"}`)
	replies := make([]scriptedReply, 8)
	for i := range replies {
		replies[i] = scriptedReply{err: quota}
	}
	factory := &fakeFactory{replies: replies}
	sleeper := &recordingSleeper{}
	opts := testOptions(factory, sleeper)
	opts.StrictQuota = true
	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	var q *QuotaError
	require.ErrorAs(t, exhausted.Last, &q)
	assert.Equal(t, 10*time.Second, q.SuggestedDelay)
	assert.Len(t, factory.last().requests, 5)

	// Five pre-waits interleaved with four quota backoffs, none after the last attempt.
	want := []time.Duration{
		30 * time.Second, 25 * time.Second,
		30 * time.Second, 25 * time.Second,
		30 * time.Second, 25 * time.Second,
		30 * time.Second, 25 * time.Second,
		30 * time.Second,
	}
	assert.Equal(t, want, sleeper.waits)
}

func TestGenerate_SleepErrorStopsLoop(t *testing.T) {
	factory := &fakeFactory{replies: []scriptedReply{{err: errors.New("e1")}}}
	opts := testOptions(factory, &recordingSleeper{})
	opts.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_InteractiveCredentialFlow(t *testing.T) {
	dir := t.TempDir()
	save := filepath.Join(dir, "cfg", "ai-test-generator.json")
	factory := &fakeFactory{replies: []scriptedReply{{text: "ok"}}}
	prompter := &fakePrompter{key: "typed-key", confirm: true}

	opts := testOptions(factory, &recordingSleeper{})
	opts.APIKey = ""
	opts.SavePath = save
	opts.Prompter = prompter

	c, err := NewClient(opts)
	require.NoError(t, err)
	assert.Equal(t, CredentialPendingInteractive, c.State())
	assert.Zero(t, prompter.keyCalls, "construction must not prompt")

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, CredentialResolved, c.State())
	assert.Equal(t, "typed-key", factory.last().key)
	require.Len(t, prompter.questions, 1)

	key, err := LoadCredential(save)
	require.NoError(t, err)
	assert.Equal(t, "typed-key", key)

	info, err := os.Stat(save)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = c.Generate(context.Background(), "p")
	assert.Error(t, err)
	assert.Equal(t, 1, prompter.keyCalls)
}

func TestGenerate_EmptyInteractiveKeyStaysPending(t *testing.T) {
	prompter := &fakePrompter{}
	opts := testOptions(&fakeFactory{}, &recordingSleeper{})
	opts.APIKey = ""
	opts.Prompter = prompter

	c, err := NewClient(opts)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.False(t, credErr.IsFatal())
	assert.Equal(t, CredentialPendingInteractive, c.State())
}

func TestGenerate_SaveDeclinedWritesNothing(t *testing.T) {
	save := filepath.Join(t.TempDir(), "k.json")
	opts := testOptions(&fakeFactory{replies: []scriptedReply{{text: "ok"}}}, &recordingSleeper{})
	opts.APIKey = ""
	opts.SavePath = save
	opts.Prompter = &fakePrompter{key: "k", confirm: false}

	c, err := NewClient(opts)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "p")
	require.NoError(t, err)

	_, err = os.Stat(save)
	assert.True(t, os.IsNotExist(err))
}

func TestSetters_ReinitializeImmediately(t *testing.T) {
	factory := &fakeFactory{}
	c, err := NewClient(testOptions(factory, &recordingSleeper{}))
	require.NoError(t, err)

	require.NoError(t, c.SetModel("gemini-2.0-pro"))
	assert.Len(t, factory.transports, 2)
	assert.Equal(t, "test-key", factory.last().key)
	assert.Equal(t, "gemini-2.0-pro", c.Model())

	require.NoError(t, c.SetAPIKey("other-key"))
	assert.Len(t, factory.transports, 3)
	assert.Equal(t, "other-key", factory.last().key)

	assert.Error(t, c.SetAPIKey(""))
	assert.Error(t, c.SetModel(" "))

	c.SetStrictQuota(true)
	assert.True(t, c.StrictQuota())

	c.SetOffline(true)
	out, err := c.Generate(context.Background(), "Component name: add\nfunction add() {}")
	require.NoError(t, err)
	assert.Contains(t, out, "expect(add).toBeDefined()")
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
