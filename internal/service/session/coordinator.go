package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/model/profile"
	"github.com/soulbot/soulbot/backend/internal/service/ai"
	"github.com/soulbot/soulbot/backend/internal/service/delivery"
	"github.com/soulbot/soulbot/backend/internal/service/export"
	"github.com/soulbot/soulbot/backend/internal/service/transcript"
)

// Deps are the collaborators of one session.
type Deps struct {
	Transport Transport
	Inference Inference
	Profiles  profile.Lookup
	Delivery  delivery.Sender
	Persister Persister
	Logger    logrus.FieldLogger
}

// Coordinator owns one conversation: its transcript, its state machine and the
// terminate/export/teardown sequence. Handle must only be called from one goroutine,
// which is what Run does.
type Coordinator struct {
	id        string
	createdAt time.Time
	opts      Options
	logger    logrus.FieldLogger

	transport Transport
	inference Inference
	profiles  profile.Lookup
	delivery  delivery.Sender
	persister Persister

	store    *transcript.Store
	handlers map[string]FunctionHandler
	events   chan Event

	state    atomic.Int32
	opened   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once

	profile *profile.Profile

	imageMu     sync.Mutex
	latestImage *chat.ImageRef

	persistMu    sync.Mutex
	persistedLen int
}

// New builds an active coordinator. Transport and Inference are required.
func New(id string, deps Deps, opts Options) (*Coordinator, error) {
	if deps.Transport == nil || deps.Inference == nil {
		return nil, errors.New("session: transport and inference are required")
	}
	if deps.Delivery == nil {
		deps.Delivery = delivery.Disabled{}
	}
	if deps.Persister == nil {
		deps.Persister = export.NewWriter("")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	opts = opts.withDefaults()

	c := &Coordinator{
		id:        id,
		createdAt: time.Now().UTC(),
		opts:      opts,
		logger:    deps.Logger.WithField("session", id),
		transport: deps.Transport,
		inference: deps.Inference,
		profiles:  deps.Profiles,
		delivery:  deps.Delivery,
		persister: deps.Persister,
		store:     transcript.NewStore(id),
		events:    make(chan Event, opts.QueueSize),
		done:      make(chan struct{}),
	}
	c.state.Store(int32(chat.StateActive))
	c.handlers = map[string]FunctionHandler{
		ai.FunctionDescribeImage: describeImage,
		ai.FunctionSendEmail:     sendEmail,
	}
	return c, nil
}

// ID returns the session identifier.
func (c *Coordinator) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Coordinator) State() chat.State {
	return chat.State(c.state.Load())
}

// Done is closed once the session reaches the closed state.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Snapshot copies the current transcript.
func (c *Coordinator) Snapshot() chat.Snapshot { return c.store.Snapshot() }

// Info summarises the session for listings.
func (c *Coordinator) Info() chat.SessionInfo {
	return chat.SessionInfo{ID: c.id, State: c.State(), Turns: c.store.Len(), CreatedAt: c.createdAt}
}

// RegisterFunction adds or replaces a named function handler. Call before Run.
func (c *Coordinator) RegisterFunction(name string, h FunctionHandler) {
	c.handlers[name] = h
}

// ObserveImage replaces the latest-image slot.
func (c *Coordinator) ObserveImage(ref chat.ImageRef) {
	c.imageMu.Lock()
	c.latestImage = &ref
	c.imageMu.Unlock()
}

// LatestImage returns the most recent frame, if any.
func (c *Coordinator) LatestImage() *chat.ImageRef {
	c.imageMu.Lock()
	defer c.imageMu.Unlock()
	if c.latestImage == nil {
		return nil
	}
	ref := *c.latestImage
	return &ref
}

// Open fetches the personalization profile, seeds the system turn and greets the
// participant. The greeting is spoken but not recorded. Later calls do nothing.
func (c *Coordinator) Open(ctx context.Context) error {
	if !c.opened.CompareAndSwap(false, true) {
		return nil
	}

	if c.profiles != nil {
		p, err := c.profiles.MostRecent(ctx)
		switch {
		case err != nil:
			c.logger.WithError(err).Warn("profile lookup failed, continuing without personalization")
		case p == nil:
			c.logger.Info("no profile found")
		default:
			c.profile = p
		}
	}

	system := chat.NewTurn(chat.RoleSystem, chat.TextPart(ai.BuildSystemPrompt(c.opts.SystemPrompt, c.profile)))
	if _, err := c.store.Append(system); err != nil {
		return fmt.Errorf("seed system turn: %w", err)
	}

	if c.opts.Greeting != "" {
		c.say(ctx, c.opts.Greeting, true)
	}
	return nil
}

// Enqueue hands an event to the Run loop.
func (c *Coordinator) Enqueue(ctx context.Context, ev Event) error {
	if c.State() != chat.StateActive {
		c.logger.WithField("event", ev.eventName()).Warn("event rejected, session not active")
		return ErrSessionClosed
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes queued events until ctx is cancelled or the session closes. A fallback
// persist runs on every exit path, including a recovered panic.
func (c *Coordinator) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("session loop panicked")
		}
		c.markClosed()
		c.fallbackPersist()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("session context ended")
			return
		case <-c.done:
			return
		case ev := <-c.events:
			if err := c.Handle(ctx, ev); err != nil && !errors.Is(err, ErrSessionClosed) {
				c.logger.WithError(err).Warn("event handling failed")
			}
		}
	}
}

// Shutdown closes an active session from outside. It is ignored while the session is
// terminating and is idempotent.
func (c *Coordinator) Shutdown() {
	if c.state.CompareAndSwap(int32(chat.StateActive), int32(chat.StateClosed)) {
		c.logger.Info("session shut down")
		c.signalDone()
	}
}

// Handle processes ev and every follow-up event it produces.
func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	queue := []Event{ev}
	for processed := 0; len(queue) > 0; processed++ {
		next := queue[0]
		queue = queue[1:]

		if c.State() != chat.StateActive {
			c.logger.WithField("event", next.eventName()).Warn("event dropped, session not active")
			return ErrSessionClosed
		}
		if processed > maxFollowUps {
			c.logger.WithField("dropped", len(queue)+1).Warn("follow-up limit reached")
			return nil
		}

		follow, err := c.dispatch(ctx, next)
		if err != nil {
			return err
		}
		queue = append(queue, follow...)
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, ev Event) ([]Event, error) {
	switch e := ev.(type) {
	case TextEvent:
		return c.handleText(ctx, e.Text, e.WithImage)
	case TranscriptionEvent:
		return c.handleText(ctx, e.Text, false)
	case FunctionResultEvent:
		return c.handleFunction(ctx, e)
	default:
		c.logger.WithField("type", fmt.Sprintf("%T", ev)).Warn("unknown event type")
		return nil, nil
	}
}

func (c *Coordinator) handleText(ctx context.Context, text string, withImage bool) ([]Event, error) {
	if chat.IsQuitCommand(text) {
		c.terminate(ctx)
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Debug("ignoring empty message")
		return nil, nil
	}

	parts := []chat.Part{chat.TextPart(text)}
	if withImage {
		if img := c.LatestImage(); img != nil {
			parts = append(parts, chat.ImagePart(*img))
		} else {
			c.logger.Debug("visual context requested but no frame observed")
		}
	}
	if _, err := c.store.Append(chat.NewTurn(chat.RoleUser, parts...)); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	reply, err := c.inference.Complete(ctx, c.store.Snapshot().Turns)
	if err != nil {
		c.logger.WithError(err).Error("inference failed, sending apology")
		c.appendAssistant(ctx, chat.NewTurn(chat.RoleAssistant, chat.TextPart(c.opts.Apology)))
		return nil, nil
	}

	reply.Role = chat.RoleAssistant
	switch {
	case strings.TrimSpace(reply.Text()) != "":
		c.appendAssistant(ctx, reply)
	case len(reply.Calls) > 0:
		// Recorded but not spoken; the follow-up chain produces the spoken answer.
		if _, err := c.store.Append(reply); err != nil {
			return nil, fmt.Errorf("append assistant turn: %w", err)
		}
	default:
		c.logger.Warn("empty completion, sending apology")
		c.appendAssistant(ctx, chat.NewTurn(chat.RoleAssistant, chat.TextPart(c.opts.Apology)))
		return nil, nil
	}

	follow := make([]Event, 0, len(reply.Calls))
	for _, call := range reply.Calls {
		follow = append(follow, FunctionResultEvent{Name: call.Name, Arguments: call.Arguments})
	}
	return follow, nil
}

func (c *Coordinator) handleFunction(ctx context.Context, ev FunctionResultEvent) ([]Event, error) {
	h, ok := c.handlers[ev.Name]
	if !ok {
		c.logger.WithField("function", ev.Name).Warn("unknown function ignored")
		return nil, nil
	}
	args, err := ai.DecodeArguments(ev.Arguments)
	if err != nil {
		c.logger.WithError(err).WithField("function", ev.Name).Warn("bad function arguments")
		return nil, nil
	}
	c.logger.WithField("function", ev.Name).Info("function called")
	return h(ctx, c, args)
}

func (c *Coordinator) appendAssistant(ctx context.Context, turn chat.Turn) {
	if _, err := c.store.Append(turn); err != nil {
		c.logger.WithError(err).Error("append assistant turn")
		return
	}
	c.say(ctx, turn.Text(), true)
}

func (c *Coordinator) say(ctx context.Context, text string, interruptible bool) {
	if err := c.transport.SendReply(ctx, Reply{Text: text, AllowInterruptions: interruptible}); err != nil {
		c.logger.WithError(err).Warn("send reply failed")
	}
}

// terminate runs the quit sequence: persist and render, deliver, say goodbye, tear down.
func (c *Coordinator) terminate(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(chat.StateActive), int32(chat.StateTerminating)) {
		return
	}
	c.logger.Info("quit received, terminating session")

	snap := c.store.Snapshot()
	if location, err := c.persist(snap); err != nil {
		c.logger.WithError(err).Error("persist transcript")
	} else {
		c.logger.WithField("path", location).Info("transcript saved")
	}

	doc, err := export.Render(snap, c.profile)
	if err != nil {
		c.logger.WithError(err).Error("render transcript")
	} else if to := c.contactAddress(); to == "" {
		c.logger.Info("no usable contact address, skipping delivery")
	} else if err := c.delivery.Send(ctx, to, doc, c.opts.Subject); err != nil {
		c.logger.WithError(err).WithField("to", to).Error("deliver transcript")
	} else {
		c.logger.WithField("to", to).Info("transcript delivered")
	}

	c.say(ctx, c.opts.Farewell, false)

	if err := c.transport.Disconnect(ctx); err != nil {
		c.logger.WithError(err).Warn("disconnect transport")
	}
	c.markClosed()
}

func (c *Coordinator) contactAddress() string {
	if c.profile.HasContact() {
		addr := strings.TrimSpace(c.profile.ContactAddress)
		if delivery.ValidAddress(addr) {
			return addr
		}
		c.logger.WithField("address", addr).Warn("profile contact address is invalid")
	}
	if addr := strings.TrimSpace(c.opts.ContactOverride); addr != "" && delivery.ValidAddress(addr) {
		return addr
	}
	return ""
}

func (c *Coordinator) persist(snap chat.Snapshot) (string, error) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	location, err := c.persister.Persist(snap)
	if err != nil {
		return "", err
	}
	c.persistedLen = len(snap.Turns)
	return location, nil
}

func (c *Coordinator) fallbackPersist() {
	snap := c.store.Snapshot()
	if len(snap.Turns) == 0 {
		return
	}

	c.persistMu.Lock()
	already := c.persistedLen == len(snap.Turns)
	c.persistMu.Unlock()
	if already {
		return
	}

	location, err := c.persist(snap)
	if err != nil {
		c.logger.WithError(err).Error("fallback persist failed")
		return
	}
	c.logger.WithField("path", location).Info("transcript saved on exit")
}

func (c *Coordinator) markClosed() {
	c.state.Store(int32(chat.StateClosed))
	c.signalDone()
}

func (c *Coordinator) signalDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
