// Package agentctx holds the mutable state threaded through every round of
// one orchestration run: mounted protocol servers, compiled service
// description references, and the conversation history.
package agentctx

import (
	"strings"

	"github.com/questor-ai/questor/pkg/llms"
)

// ServerRef is one mounted protocol server endpoint. Headers are passed to
// the transport at connect time.
type ServerRef struct {
	URL     string            `json:"url"`
	Name    string            `json:"name,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SpecRef is one compiled service description reference. AuthHeader, when
// set, is the bearer or API-key value handed to the compiler.
type SpecRef struct {
	URL        string `json:"url"`
	Name       string `json:"name,omitempty"`
	AuthHeader string `json:"authHeaderValue,omitempty"`
}

// Context is owned exclusively by one orchestration run and mutated in place
// across its rounds. It is never shared between concurrent runs and never
// reused across independent top-level invocations.
type Context struct {
	MountedServers []ServerRef    `json:"mountedServers"`
	APISpecs       []SpecRef      `json:"apiSpecs"`
	History        []llms.Message `json:"history,omitempty"`

	visited map[string]struct{}
}

// New creates a fresh Context seeded with static servers and specs.
func New(servers []ServerRef, specs []SpecRef) *Context {
	c := &Context{
		visited: make(map[string]struct{}),
	}
	for _, s := range servers {
		c.AddServer(s)
	}
	for _, s := range specs {
		c.AddSpec(s)
	}
	return c
}

// AddServer mounts a server, preserving discovery order. Re-mounting a URL
// already present is a no-op; the return value reports whether the entry
// was new.
func (c *Context) AddServer(ref ServerRef) bool {
	if !c.mark("server:" + normalizeURL(ref.URL)) {
		return false
	}
	c.MountedServers = append(c.MountedServers, ref)
	return true
}

// AddSpec appends a compiled-description reference, preserving discovery
// order and deduplicating by URL.
func (c *Context) AddSpec(ref SpecRef) bool {
	if !c.mark("spec:" + normalizeURL(ref.URL)) {
		return false
	}
	c.APISpecs = append(c.APISpecs, ref)
	return true
}

// Append adds messages to the history. History is append-only within a run.
func (c *Context) Append(msgs ...llms.Message) {
	c.History = append(c.History, msgs...)
}

func (c *Context) mark(key string) bool {
	if c.visited == nil {
		c.visited = make(map[string]struct{})
	}
	if _, ok := c.visited[key]; ok {
		return false
	}
	c.visited[key] = struct{}{}
	return true
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
