// Package sandbox runs user-supplied script code against the current tool
// catalog inside an isolated goja runtime (§4.8). Every invocation gets a
// fresh interpreter: no globals, no filesystem, no process access survive
// across calls.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// maxFetchResponseBytes caps how much of a fetch response body the
// sandbox will read into the script's heap, independent of the
// script's own output-size cap, since a response is read before the
// script ever sees a value to return.
const maxFetchResponseBytes = 4 * 1024 * 1024

// NetworkBroker gates the sandbox's `fetch` binding against the
// gateway's egress policy (§4.9): Allow classifies and decides on the
// target host/port, consulting the session's cached decisions and, for
// scopes requiring it, the confirmation channel.
type NetworkBroker interface {
	Allow(ctx context.Context, host, port string) (bool, error)
}

// ToolDescriptor is the slice of a catalog.ToolRecord the sandbox needs to
// bind a callable and run parameter alignment for `do`.
type ToolDescriptor struct {
	QualifiedName string
	Provider      string
	LocalName     string
	Description   string
	InputSchema   json.RawMessage
}

// ToolCaller dispatches a tool call on behalf of the sandbox, normally
// wired to a connmgr.Manager.Call closure by the gateway server.
type ToolCaller func(ctx context.Context, qualifiedName string, params map[string]any) (any, error)

// ToolFinder ranks tools against an intent string, normally wired to a
// semantic.Index.Query closure.
type ToolFinder func(ctx context.Context, intent string, limit int) ([]ToolDescriptor, error)

// Outcome is everything a Run call surfaces to the `code` tool handler.
type Outcome struct {
	Value     json.RawMessage
	Logs      []string
	Error     string
	TimedOut  bool
	Truncated bool
}

// Sandbox binds a snapshot of the tool catalog and runs scripts against it.
// It holds no mutable state of its own between Run calls; every field is
// read-only after New.
type Sandbox struct {
	cfg    gwconfig.SandboxConfig
	tools  []ToolDescriptor
	caller ToolCaller
	finder ToolFinder
	broker NetworkBroker
	client *http.Client
}

// New constructs a Sandbox bound to a fixed tool snapshot. The caller is
// responsible for rebuilding a new Sandbox whenever the catalog changes;
// a Sandbox itself never observes catalog updates mid-flight (§3: "no
// value written to a global in one invocation is observable in the next"
// extends to catalog bindings staying fixed for the invocation's life).
func New(cfg gwconfig.SandboxConfig, tools []ToolDescriptor, caller ToolCaller, finder ToolFinder) *Sandbox {
	return &Sandbox{cfg: cfg, tools: tools, caller: caller, finder: finder}
}

// WithNetworkBroker returns a copy of s that binds `fetch` to the
// sandbox runtime, gated by broker. A Sandbox with no broker never
// binds `fetch` at all, so a reference to it raises goja's own
// ReferenceError rather than silently allowing every request.
func (s *Sandbox) WithNetworkBroker(broker NetworkBroker) *Sandbox {
	clone := *s
	clone.broker = broker
	clone.client = &http.Client{}
	return &clone
}

// Run executes script in a fresh isolate, enforcing the configured (or
// explicitly requested, clamped to MaxTimeout) wall-clock timeout and a
// best-effort memory ceiling, and returns its value plus captured console
// output. The value is the script's final expression, or, for a script
// with a top-level `return`, the returned value.
func (s *Sandbox) Run(ctx context.Context, script string, timeout time.Duration) Outcome {
	timeout = s.clampTimeout(timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	var logsMu sync.Mutex
	var logs []string
	appendLog := func(parts []string) {
		logsMu.Lock()
		logs = append(logs, strings.Join(parts, " "))
		logsMu.Unlock()
	}
	bindConsole(vm, appendLog)
	s.bindTools(ctx, vm)
	s.bindDo(ctx, vm)
	if s.broker != nil {
		s.bindFetch(ctx, vm)
	}

	prog, err := goja.Compile("", script, false)
	if err != nil {
		// A top-level `return` does not compile as plain script code, so
		// such a script is compiled again as a function body.
		wrapped, werr := goja.Compile("", "(function(){\n"+script+"\n})()", false)
		if werr != nil {
			return s.errorOutcome(err, nil)
		}
		prog = wrapped
	}

	done := make(chan struct{})
	stopWatchdog := s.watchMemory(vm)
	defer stopWatchdog()

	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = vm.RunProgram(prog)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		vm.Interrupt("sandbox: execution timed out")
		<-done
	}

	logsMu.Lock()
	capturedLogs := append([]string(nil), logs...)
	logsMu.Unlock()

	if runErr != nil {
		return s.errorOutcome(runErr, capturedLogs)
	}
	return s.valueOutcome(value, capturedLogs)
}

func (s *Sandbox) clampTimeout(requested time.Duration) time.Duration {
	def := s.cfg.DefaultTimeout
	if def <= 0 {
		def = 30 * time.Second
	}
	max := s.cfg.MaxTimeout
	if max <= 0 {
		max = 5 * time.Minute
	}
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

func (s *Sandbox) errorOutcome(err error, logs []string) Outcome {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return Outcome{Error: "timeout", Logs: logs, TimedOut: true}
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return Outcome{Error: exc.Value().String(), Logs: logs}
	}
	return Outcome{Error: err.Error(), Logs: logs}
}

func (s *Sandbox) valueOutcome(value goja.Value, logs []string) Outcome {
	if value == nil || goja.IsUndefined(value) {
		return Outcome{Value: json.RawMessage("null"), Logs: logs}
	}
	raw, err := json.Marshal(value.Export())
	if err != nil {
		return Outcome{Error: fmt.Sprintf("result is not JSON-serializable: %v", err), Logs: logs}
	}
	ceiling := s.cfg.MaxOutputBytes
	if ceiling <= 0 {
		ceiling = 1024 * 1024
	}
	if int64(len(raw)) > ceiling {
		return Outcome{
			Value:     json.RawMessage(fmt.Sprintf(`{"truncated":true,"originalBytes":%d}`, len(raw))),
			Logs:      logs,
			Truncated: true,
		}
	}
	return Outcome{Value: raw, Logs: logs}
}

func bindConsole(vm *goja.Runtime, appendLog func([]string)) {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		appendLog(parts)
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("warn", logFn)
	_ = console.Set("error", logFn)
	_ = vm.Set("console", console)
}

// bindTools injects one namespace object per provider, each holding a
// function per tool (§4.8 "Binding"). Missing names simply don't exist on
// the namespace object, so a reference to them raises goja's own
// TypeError at call time rather than at bind time, matching the spec's
// "invalid references raise at call time" requirement.
func (s *Sandbox) bindTools(ctx context.Context, vm *goja.Runtime) {
	byProvider := make(map[string][]ToolDescriptor)
	for _, t := range s.tools {
		byProvider[t.Provider] = append(byProvider[t.Provider], t)
	}
	for provider, tools := range byProvider {
		ns := vm.NewObject()
		for _, t := range tools {
			t := t
			_ = ns.Set(t.LocalName, func(call goja.FunctionCall) goja.Value {
				return s.invokeFromScript(ctx, vm, t.QualifiedName, call)
			})
		}
		_ = vm.Set(provider, ns)
	}
}

func (s *Sandbox) invokeFromScript(ctx context.Context, vm *goja.Runtime, qualifiedName string, call goja.FunctionCall) goja.Value {
	params := map[string]any{}
	if len(call.Arguments) > 0 {
		if m, ok := call.Argument(0).Export().(map[string]any); ok {
			params = m
		}
	}
	result, err := s.caller(ctx, qualifiedName, params)
	if err != nil {
		panic(vm.NewGoError(err))
	}
	return vm.ToValue(result)
}

// bindDo wires the `do(intent, context?)` convenience router (§4.8
// "Convenience routing"): find the best match, align params, run it.
func (s *Sandbox) bindDo(ctx context.Context, vm *goja.Runtime) {
	_ = vm.Set("do", func(call goja.FunctionCall) goja.Value {
		intent := call.Argument(0).String()
		var scriptContext map[string]any
		if len(call.Arguments) > 1 {
			if m, ok := call.Argument(1).Export().(map[string]any); ok {
				scriptContext = m
			}
		}

		matches, err := s.finder(ctx, intent, 1)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if len(matches) == 0 {
			panic(vm.NewGoError(gwerrors.New(gwerrors.KindToolNotFound, "no tool matches intent %q", intent)))
		}
		best := matches[0]
		aligned := alignParams(scriptContext, best.InputSchema)

		result, err := s.caller(ctx, best.QualifiedName, aligned)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(result)
	})
}

// bindFetch injects a minimal `fetch(url, options?)` global gated by the
// sandbox's NetworkBroker (§4.9): every call is classified and decided
// before any request is issued, never after.
func (s *Sandbox) bindFetch(ctx context.Context, vm *goja.Runtime) {
	_ = vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).String()
		if target == "" {
			panic(vm.NewGoError(gwerrors.New(gwerrors.KindInvalidRequest, "fetch: url is required")))
		}

		method := http.MethodGet
		var body io.Reader
		headers := map[string]string{}
		if opts, ok := call.Argument(1).Export().(map[string]any); ok {
			if m, ok := opts["method"].(string); ok && m != "" {
				method = strings.ToUpper(m)
			}
			if b, ok := opts["body"].(string); ok {
				body = strings.NewReader(b)
			}
			if h, ok := opts["headers"].(map[string]any); ok {
				for k, v := range h {
					if sv, ok := v.(string); ok {
						headers[k] = sv
					}
				}
			}
		}

		result, err := s.doFetch(ctx, method, target, headers, body)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(result)
	})
}

type fetchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func splitHostPort(u *url.URL) (host, port string, err error) {
	host = u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("url has no host")
	}
	port = u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	return host, port, nil
}

func (s *Sandbox) doFetch(ctx context.Context, method, target string, headers map[string]string, body io.Reader) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInvalidRequest, err, "fetch: invalid request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, port, err := splitHostPort(req.URL)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInvalidRequest, err, "fetch: invalid url")
	}
	allowed, err := s.broker.Allow(ctx, host, port)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindNetworkBlocked, err, "fetch: egress policy error")
	}
	if !allowed {
		return nil, gwerrors.New(gwerrors.KindNetworkBlocked, "fetch: egress to %s denied by policy", req.URL.Host)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindChildError, err, "fetch: request failed")
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxFetchResponseBytes)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindChildError, err, "fetch: reading response")
	}

	hdrs := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		hdrs[k] = resp.Header.Get(k)
	}
	return &fetchResult{Status: resp.StatusCode, Headers: hdrs, Body: string(raw)}, nil
}

// watchMemory polls the process's live heap size and interrupts the vm if
// growth since the call started exceeds the configured ceiling. This is
// necessarily process-wide and coarse: goja exposes no per-Runtime
// allocation accounting, so the ceiling is a best-effort guard against a
// runaway script rather than a hard per-isolate limit.
func (s *Sandbox) watchMemory(vm *goja.Runtime) func() {
	ceiling := s.cfg.MemoryCeiling
	if ceiling <= 0 {
		return func() {}
	}
	var start runtime.MemStats
	runtime.ReadMemStats(&start)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var cur runtime.MemStats
				runtime.ReadMemStats(&cur)
				if int64(cur.HeapAlloc)-int64(start.HeapAlloc) > ceiling {
					vm.Interrupt("sandbox: memory ceiling exceeded")
					return
				}
			}
		}
	}()
	return func() { close(stop) }
}

// aliasGroups lists sets of schema-property names that a script's context
// object might use interchangeably (§4.8 "a simple semantic alias table").
var aliasGroups = [][]string{
	{"id", "identifier", "key"},
	{"name", "title", "label"},
	{"body", "content", "text"},
	{"message", "msg", "text"},
	{"description", "desc", "summary"},
	{"url", "uri", "link"},
	{"owner", "org", "organization"},
}

// alignParams maps a script-supplied context object onto a tool's input
// schema property names: exact match first, then the alias table, then a
// substring similarity fallback (§4.8 "Convenience routing").
func alignParams(scriptContext map[string]any, schema json.RawMessage) map[string]any {
	props := schemaPropertyNames(schema)
	if len(props) == 0 {
		return scriptContext
	}

	aligned := make(map[string]any, len(props))
	used := make(map[string]bool, len(scriptContext))

	for _, prop := range props {
		if v, ok := scriptContext[prop]; ok {
			aligned[prop] = v
			used[prop] = true
		}
	}
	for _, prop := range props {
		if _, done := aligned[prop]; done {
			continue
		}
		for _, group := range aliasGroups {
			if !containsString(group, prop) {
				continue
			}
			for _, alias := range group {
				if used[alias] {
					continue
				}
				if v, ok := scriptContext[alias]; ok {
					aligned[prop] = v
					used[alias] = true
					break
				}
			}
			if _, done := aligned[prop]; done {
				break
			}
		}
	}
	for _, prop := range props {
		if _, done := aligned[prop]; done {
			continue
		}
		lowerProp := strings.ToLower(prop)
		var candidates []string
		for key := range scriptContext {
			if used[key] {
				continue
			}
			lowerKey := strings.ToLower(key)
			if strings.Contains(lowerKey, lowerProp) || strings.Contains(lowerProp, lowerKey) {
				candidates = append(candidates, key)
			}
		}
		sort.Strings(candidates)
		if len(candidates) > 0 {
			aligned[prop] = scriptContext[candidates[0]]
			used[candidates[0]] = true
		}
	}
	return aligned
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func schemaPropertyNames(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
