package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "sparkwave/shared/contracts/realtime/v1"

	"sparkwave/cmd/internal/directory"
	"sparkwave/cmd/internal/safety"
)

const (
	alice = "01J00000000000000000000ALCE"
	bob   = "01J000000000000000000000BOB"
)

type fakeDir struct {
	users     map[string]directory.Profile
	assistant directory.Profile
}

func newFakeDir() *fakeDir {
	return &fakeDir{
		users: map[string]directory.Profile{
			alice: {ID: alice, Username: "alice"},
			bob:   {ID: bob, Username: "bob"},
		},
		assistant: directory.Profile{ID: "01J0000000000000000000000AI", Username: "sparkwave_ai"},
	}
}

func (f *fakeDir) FindLoginByEmail(context.Context, string) (directory.Login, error) {
	return directory.Login{}, directory.ErrNotFound
}

func (f *fakeDir) GetProfile(_ context.Context, id string) (directory.Profile, error) {
	if p, ok := f.users[id]; ok {
		return p, nil
	}
	return directory.Profile{}, directory.ErrNotFound
}

func (f *fakeDir) Exists(_ context.Context, id string) (bool, error) {
	if id == f.assistant.ID {
		return true, nil
	}
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeDir) EnsureAssistant(context.Context, time.Time) (directory.Profile, error) {
	return f.assistant, nil
}

// recordingPusher captures pushes and can run an assertion at push time.
type recordingPusher struct {
	mu     sync.Mutex
	pushes []struct {
		UserID string
		Env    v1.Envelope
	}
	onPush func(userID string, env v1.Envelope)
}

func (p *recordingPusher) TryPush(userID string, env v1.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onPush != nil {
		p.onPush(userID, env)
	}
	p.pushes = append(p.pushes, struct {
		UserID string
		Env    v1.Envelope
	}{userID, env})
	return true
}

func (p *recordingPusher) forUser(userID string) []v1.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []v1.Envelope
	for _, rec := range p.pushes {
		if rec.UserID == userID {
			out = append(out, rec.Env)
		}
	}
	return out
}

type stubChecker struct {
	verdict safety.Verdict
	err     error
}

func (s stubChecker) Check(context.Context, string) (safety.Verdict, error) {
	return s.verdict, s.err
}

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) Reply(context.Context, string) (string, error) {
	return s.reply, s.err
}

type routerFixture struct {
	router *Router
	msgs   *InMemoryMessageStore
	notes  *InMemoryNotificationStore
	pusher *recordingPusher
	dir    *fakeDir
}

func newRouterFixture(t *testing.T, checker safety.Checker, gen safety.Generator) *routerFixture {
	t.Helper()

	f := &routerFixture{
		msgs:   NewInMemoryMessageStore(),
		notes:  NewInMemoryNotificationStore(),
		pusher: &recordingPusher{},
		dir:    newFakeDir(),
	}
	r, err := NewRouter(nil, f.msgs, f.notes, f.dir, checker, gen, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	r.AttachPusher(f.pusher)
	f.router = r
	return f
}

func TestDeliverMessageDurableBeforePush(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	// At the instant of the recipient push, the message must already be in
	// the store.
	f.pusher.onPush = func(_ string, env v1.Envelope) {
		if env.Type != v1.TypeMessageNew {
			return
		}
		for _, m := range f.msgs.All() {
			if m.ID == env.ID {
				return
			}
		}
		t.Errorf("push of %s before durable write", env.ID)
	}

	m, err := f.router.DeliverMessage(context.Background(), alice, bob, "hi bob")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if m.ID == "" || m.Sender != alice || m.Recipient != bob {
		t.Fatalf("message = %+v", m)
	}

	envs := f.pusher.forUser(bob)
	if len(envs) != 2 {
		t.Fatalf("pushes to recipient = %d, want message_new + notification_new", len(envs))
	}
	if envs[0].Type != v1.TypeNotificationNew && envs[1].Type != v1.TypeNotificationNew {
		t.Fatal("expected a notification_new push")
	}
}

func TestDeliverMessageNoSelfNotification(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	if _, err := f.router.DeliverMessage(context.Background(), alice, alice, "note to self"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if got := len(f.notes.All()); got != 0 {
		t.Fatalf("notifications = %d, want 0", got)
	}
	if got := len(f.pusher.forUser(alice)); got != 0 {
		t.Fatalf("pushes = %d, want 0 (sender is not notified of own message)", got)
	}
	if got := len(f.msgs.All()); got != 1 {
		t.Fatalf("stored messages = %d, want 1", got)
	}
}

func TestDeliverMessageContentRejected(t *testing.T) {
	f := newRouterFixture(t, stubChecker{verdict: safety.Verdict{Toxic: true, Score: 0.95}}, nil)

	_, err := f.router.DeliverMessage(context.Background(), alice, bob, "something vile")
	if !errors.Is(err, ErrContentRejected) {
		t.Fatalf("got %v, want ErrContentRejected", err)
	}

	// Rejection leaves no trace: no message, no notification, no push.
	if len(f.msgs.All()) != 0 || len(f.notes.All()) != 0 || len(f.pusher.forUser(bob)) != 0 {
		t.Fatal("rejected message must not be persisted or pushed")
	}
}

func TestDeliverMessageModerationFailsOpen(t *testing.T) {
	f := newRouterFixture(t, stubChecker{err: errors.New("inference down")}, nil)

	if _, err := f.router.DeliverMessage(context.Background(), alice, bob, "hello"); err != nil {
		t.Fatalf("deliver should succeed when moderation is down: %v", err)
	}
	if len(f.msgs.All()) != 1 {
		t.Fatal("message should be stored")
	}
}

func TestDeliverMessageValidation(t *testing.T) {
	f := newRouterFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.router.DeliverMessage(ctx, alice, bob, "   \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank: got %v, want ErrEmptyMessage", err)
	}
	if _, err := f.router.DeliverMessage(ctx, alice, bob, strings.Repeat("x", MaxMessageLen+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("long: got %v, want ErrMessageTooLong", err)
	}
	if _, err := f.router.DeliverMessage(ctx, alice, "ghost", "hi"); !errors.Is(err, ErrUnknownRecipient) {
		t.Fatalf("unknown: got %v, want ErrUnknownRecipient", err)
	}
}

func TestAssistantReplyFallsBackWhenGenerationFails(t *testing.T) {
	f := newRouterFixture(t, nil, stubGenerator{err: errors.New("model cold")})

	m, err := f.router.AssistantReply(context.Background(), alice, "what's up?")
	if err != nil {
		t.Fatalf("assistant reply: %v", err)
	}
	if m.Text != safety.FallbackReply {
		t.Fatalf("text = %q, want canned fallback", m.Text)
	}
	if m.Sender != f.dir.assistant.ID || m.Recipient != alice {
		t.Fatalf("message = %+v", m)
	}
	if len(f.pusher.forUser(alice)) == 0 {
		t.Fatal("reply should be pushed to the user")
	}
}

func TestAssistantReplyUsesGeneratedText(t *testing.T) {
	f := newRouterFixture(t, nil, stubGenerator{reply: "All good here!"})

	m, err := f.router.AssistantReply(context.Background(), alice, "how are you?")
	if err != nil {
		t.Fatalf("assistant reply: %v", err)
	}
	if m.Text != "All good here!" {
		t.Fatalf("text = %q", m.Text)
	}
}

func TestNotifySelfDropped(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	n, err := f.router.Notify(context.Background(), alice, alice, "like", "post-1")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.ID != "" {
		t.Fatal("self-notification must be dropped")
	}
	if len(f.notes.All()) != 0 {
		t.Fatal("nothing should be stored")
	}
}

func TestNotifyPersistsThenPushes(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	n, err := f.router.Notify(context.Background(), bob, alice, "follow", "")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.Kind != "follow" || n.Recipient != bob || n.Actor != alice {
		t.Fatalf("event = %+v", n)
	}

	envs := f.pusher.forUser(bob)
	if len(envs) != 1 || envs[0].Type != v1.TypeNotificationNew {
		t.Fatalf("pushes = %+v", envs)
	}

	got, err := f.router.Notifications(context.Background(), bob, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v %+v", err, got)
	}
}

func TestReadTracking(t *testing.T) {
	f := newRouterFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.router.DeliverMessage(ctx, alice, bob, "one"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := f.router.DeliverMessage(ctx, alice, bob, "two"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	n, err := f.router.UnreadCount(ctx, bob)
	if err != nil || n != 2 {
		t.Fatalf("unread = %d (%v), want 2", n, err)
	}

	if err := f.router.MarkConversationRead(ctx, bob, alice); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, err = f.router.UnreadCount(ctx, bob)
	if err != nil || n != 0 {
		t.Fatalf("unread = %d (%v), want 0", n, err)
	}

	msgs, err := f.router.Conversation(ctx, alice, bob, 10)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("conversation: %v %d", err, len(msgs))
	}
	if msgs[0].Text != "one" || msgs[1].Text != "two" {
		t.Fatalf("order = %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

// flakyDir fails assistant provisioning a configured number of times before
// succeeding, mimicking a directory blip at boot.
type flakyDir struct {
	*fakeDir
	mu    sync.Mutex
	fails int
}

func (f *flakyDir) EnsureAssistant(ctx context.Context, now time.Time) (directory.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return directory.Profile{}, errors.New("directory unavailable")
	}
	return f.fakeDir.EnsureAssistant(ctx, now)
}

func TestAssistantIDConcurrentResolution(t *testing.T) {
	dir := &flakyDir{fakeDir: newFakeDir(), fails: 1}
	router, err := NewRouter(nil, NewInMemoryMessageStore(), NewInMemoryNotificationStore(), dir, nil, nil, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = router.AssistantID(context.Background())
		}(i)
	}
	wg.Wait()

	resolved := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			continue
		}
		resolved++
		if ids[i] != dir.assistant.ID {
			t.Fatalf("goroutine %d resolved %q, want %q", i, ids[i], dir.assistant.ID)
		}
	}
	if resolved == 0 {
		t.Fatal("every resolution failed; only one was allowed to")
	}

	// A transient failure must not poison the cache: the next call retries
	// and resolves.
	id, err := router.AssistantID(context.Background())
	if err != nil || id != dir.assistant.ID {
		t.Fatalf("post-failure resolution = %q (%v), want %q", id, err, dir.assistant.ID)
	}
}
