package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/model/profile"
	"github.com/soulbot/soulbot/backend/internal/service/export"
)

// recorder collects an ordered trace of collaborator calls.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeTransport struct {
	rec         *recorder
	mu          sync.Mutex
	replies     []Reply
	disconnects int
	onReply     func(Reply)
}

func (f *fakeTransport) SendReply(_ context.Context, r Reply) error {
	f.mu.Lock()
	f.replies = append(f.replies, r)
	hook := f.onReply
	f.mu.Unlock()
	f.rec.add("reply:" + r.Text)
	if hook != nil {
		hook(r)
	}
	return nil
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	f.rec.add("disconnect")
	return nil
}

func (f *fakeTransport) sent() []Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reply(nil), f.replies...)
}

func (f *fakeTransport) disconnected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// fakeInference answers with a numbered echo unless script overrides a call.
type fakeInference struct {
	mu     sync.Mutex
	calls  int
	seen   [][]chat.Turn
	script map[int]func([]chat.Turn) (chat.Turn, error)
}

func (f *fakeInference) Complete(_ context.Context, turns []chat.Turn) (chat.Turn, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.seen = append(f.seen, turns)
	step := f.script[n]
	f.mu.Unlock()

	if step != nil {
		return step(turns)
	}
	last := turns[len(turns)-1]
	return chat.NewTurn(chat.RoleAssistant, chat.TextPart("echo: "+last.Text())), nil
}

func (f *fakeInference) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentMail struct {
	to      string
	subject string
	doc     export.Document
}

type fakeSender struct {
	rec  *recorder
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to string, doc export.Document, subject string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, doc: doc})
	f.mu.Unlock()
	f.rec.add("deliver:" + to)
	return f.err
}

func (f *fakeSender) mails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

type countingPersister struct {
	rec   *recorder
	inner *export.Writer
	mu    sync.Mutex
	count int
}

func (p *countingPersister) Persist(snap chat.Snapshot) (string, error) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	p.rec.add("persist")
	return p.inner.Persist(snap)
}

func (p *countingPersister) persisted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type failingLookup struct{}

func (failingLookup) MostRecent(context.Context) (*profile.Profile, error) {
	return nil, errors.New("row store unavailable")
}

type harness struct {
	coord     *Coordinator
	rec       *recorder
	transport *fakeTransport
	inference *fakeInference
	sender    *fakeSender
	persister *countingPersister
	dir       string
}

func newHarness(t *testing.T, lookup profile.Lookup, opts Options) *harness {
	t.Helper()
	rec := &recorder{}
	dir := t.TempDir()
	h := &harness{
		rec:       rec,
		transport: &fakeTransport{rec: rec},
		inference: &fakeInference{script: map[int]func([]chat.Turn) (chat.Turn, error){}},
		sender:    &fakeSender{rec: rec},
		persister: &countingPersister{rec: rec, inner: export.NewWriter(dir)},
		dir:       dir,
	}
	logger, _ := test.NewNullLogger()

	coord, err := New("sess-1", Deps{
		Transport: h.transport,
		Inference: h.inference,
		Profiles:  lookup,
		Delivery:  h.sender,
		Persister: h.persister,
		Logger:    logger,
	}, opts)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func defaultProfile() profile.Lookup {
	return profile.NewStaticLookup(&profile.Profile{Name: "Asha", ContactAddress: "asha@example.com", Notes: "insomnia"})
}

func openedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, defaultProfile(), DefaultOptions())
	require.NoError(t, h.coord.Open(context.Background()))
	return h
}
