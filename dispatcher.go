package driftline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Strategy names the path that produced a reply.
type Strategy string

const (
	StrategyHosted    Strategy = "hosted"
	StrategyRemote    Strategy = "remote"
	StrategyTemplates Strategy = "templates"
)

// ForcedMode overrides backend selection for one request.
type ForcedMode string

const (
	ForceNone      ForcedMode = ""
	ForceAI        ForcedMode = "AI"
	ForceTemplates ForcedMode = "Templates"
)

// ParseForcedMode accepts "", "auto", "ai" and "templates" in any case.
// "Templates (Local)" is accepted as an alias for templates.
func ParseForcedMode(s string) (ForcedMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "none":
		return ForceNone, nil
	case "ai", "hosted":
		return ForceAI, nil
	case "templates", "template", "templates (local)", "local":
		return ForceTemplates, nil
	}
	return ForceNone, fmt.Errorf("unknown forced mode %q", s)
}

// BackendAvailability is fixed when the dispatcher is built.
type BackendAvailability uint8

const (
	HostedAvailable BackendAvailability = 1 << iota
	RemoteAvailable
)

// Has reports whether every flag in f is set.
func (a BackendAvailability) Has(f BackendAvailability) bool { return a&f == f }

func (a BackendAvailability) String() string {
	var parts []string
	if a.Has(HostedAvailable) {
		parts = append(parts, "hosted")
	}
	if a.Has(RemoteAvailable) {
		parts = append(parts, "remote")
	}
	if len(parts) == 0 {
		return "templates-only"
	}
	return strings.Join(parts, "+")
}

// Attribution suffixes appended to the teaching note.
const (
	hostedSuffix    = "\n\n💡 Response generated by hosted model (%s)."
	remoteSuffix    = "\n\n✨ Response generated using remote API (%s)"
	templatesSuffix = "\n\n🔧 Response generated using template system (Local)"
)

// Dispatcher chooses how a reply is produced and runs the drift pipeline around it.
// It is stateless between requests; callers own the state they pass in.
type Dispatcher struct {
	hosted    Backend
	remote    Backend
	available BackendAvailability
	engine    *DriftEngine
	templates *TemplateSelector
	logger    *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHostedBackend sets the hosted-model backend (first choice when unforced).
func WithHostedBackend(b Backend) DispatcherOption {
	return func(d *Dispatcher) { d.hosted = b }
}

// WithRemoteBackend sets the remote API backend (second choice when unforced).
func WithRemoteBackend(b Backend) DispatcherOption {
	return func(d *Dispatcher) { d.remote = b }
}

// WithEngine sets the drift engine (default: DefaultDriftEngine).
func WithEngine(e *DriftEngine) DispatcherOption {
	return func(d *Dispatcher) { d.engine = e }
}

// WithTemplates sets the template selector (default: built-in rows).
func WithTemplates(ts *TemplateSelector) DispatcherOption {
	return func(d *Dispatcher) { d.templates = ts }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher. Backend availability is computed once here.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:    defaultEngine,
		templates: defaultSelector,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.hosted != nil {
		d.available |= HostedAvailable
	}
	if d.remote != nil {
		d.available |= RemoteAvailable
	}
	return d
}

// Availability reports which backends were configured.
func (d *Dispatcher) Availability() BackendAvailability { return d.available }

// Engine returns the drift engine the dispatcher applies.
func (d *Dispatcher) Engine() *DriftEngine { return d.engine }

// Request is one student message plus everything needed to answer it.
type Request struct {
	Message string
	Persona *Persona
	History []ConversationTurn
	State   EmotionalState // not modified; Result.State is the updated copy
	Forced  ForcedMode
	// OnToken optionally receives raw partial text from streaming backends. The text is
	// provisional: it is not post-processed, and it is discarded if the backend fails
	// and the reply falls back to templates (Result.StreamDiscarded).
	OnToken func(string)
}

// Result is the reply, the updated state and the teaching note.
type Result struct {
	Reply        string
	State        EmotionalState
	TeachingNote string
	Strategy     Strategy
	Backend      string
	Mode         Mode
	Artifact     bool // reply was replaced by a filler line

	// StreamDiscarded reports that OnToken received text from a backend that then
	// failed; Reply comes from templates and replaces it.
	StreamDiscarded bool
}

// Generate produces a reply. Forced templates never touch a backend. Forced AI uses
// the hosted backend and returns its error. Unforced requests try hosted, then remote,
// then templates; a backend failure falls back to templates and is not returned.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Persona == nil {
		return nil, &ConfigurationError{Record: "request", Field: "persona", Reason: "missing"}
	}
	log := d.logger.With(zap.String("persona", req.Persona.Name))

	switch req.Forced {
	case ForceTemplates:
		return d.fromTemplates(req), nil
	case ForceAI:
		if d.hosted == nil {
			return nil, &BackendError{Backend: string(StrategyHosted), Err: ErrNoHostedBackend}
		}
		res, err := d.fromBackend(ctx, req, StrategyHosted, d.hosted)
		if err != nil {
			recordBackendFailure(d.hosted.Name())
			log.Warn("forced hosted generation failed", zap.String("backend", d.hosted.Name()), zap.Error(err))
			return nil, err
		}
		return res, nil
	case ForceNone:
	default:
		return nil, &ConfigurationError{Record: "request", Field: "forced", Reason: fmt.Sprintf("unknown mode %q", req.Forced)}
	}

	strategy, backend := d.choose()
	if backend == nil {
		return d.fromTemplates(req), nil
	}
	var streamed bool
	if onToken := req.OnToken; onToken != nil {
		req.OnToken = func(tok string) {
			streamed = true
			onToken(tok)
		}
	}
	res, err := d.fromBackend(ctx, req, strategy, backend)
	if err != nil {
		recordBackendFailure(backend.Name())
		log.Warn("backend failed, falling back to templates",
			zap.String("strategy", string(strategy)),
			zap.String("backend", backend.Name()),
			zap.Bool("stream_discarded", streamed),
			zap.Error(err))
		res = d.fromTemplates(req)
		res.StreamDiscarded = streamed
		return res, nil
	}
	return res, nil
}

func (d *Dispatcher) choose() (Strategy, Backend) {
	switch {
	case d.available.Has(HostedAvailable):
		return StrategyHosted, d.hosted
	case d.available.Has(RemoteAvailable):
		return StrategyRemote, d.remote
	}
	return StrategyTemplates, nil
}

// prepare copies the request state and applies the message's effects to the copy.
func (d *Dispatcher) prepare(req Request) (EmotionalState, Mode) {
	state := req.State.Clone()
	state.fillDefaults()
	d.engine.Reclassify(&state)
	d.engine.ApplyResponseEffects(&state, req.Message)
	return state, state.Mode
}

func (d *Dispatcher) fromTemplates(req Request) *Result {
	state, mode := d.prepare(req)
	reply := d.templates.Select(req.Message, req.Persona.Name, mode, state, req.Persona, req.History)
	return d.finish(req, state, mode, reply, StrategyTemplates, "local", templatesSuffix)
}

func (d *Dispatcher) fromBackend(ctx context.Context, req Request, strategy Strategy, b Backend) (*Result, error) {
	state, mode := d.prepare(req)
	instruction := BuildInstruction(req.Persona, state, mode, req.History, req.Message)

	var raw string
	var err error
	if sb, ok := b.(StreamingBackend); ok && req.OnToken != nil {
		raw, err = sb.GenerateStream(ctx, instruction, req.OnToken)
	} else {
		raw, err = b.Generate(ctx, instruction)
	}
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Err: err}
	}

	reply, artifact := CleanGeneration(raw, req.Persona.Name)
	if artifact {
		recordArtifact()
		d.logger.Debug("generation replaced by filler", zap.String("backend", b.Name()))
	}

	suffix := fmt.Sprintf(hostedSuffix, b.Name())
	if strategy == StrategyRemote {
		suffix = fmt.Sprintf(remoteSuffix, b.Name())
	}
	res := d.finish(req, state, mode, reply, strategy, b.Name(), suffix)
	res.Artifact = artifact
	return res, nil
}

func (d *Dispatcher) finish(req Request, state EmotionalState, mode Mode, reply string, strategy Strategy, backend, suffix string) *Result {
	d.engine.Remember(&state, d.engine.MemoryTag(req.Message, mode, state))
	note := d.engine.TeachingNote(state, req.Message, mode) + suffix
	recordResponse(strategy, mode)
	return &Result{
		Reply:        reply,
		State:        state,
		TeachingNote: note,
		Strategy:     strategy,
		Backend:      backend,
		Mode:         mode,
	}
}
