// ABOUTME: Scripted in-memory assistant API and recording delivery for orchestrator tests
// ABOUTME: Runs complete after a configurable number of polls and append queued replies

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/filedesk/internal/answer"
	"github.com/2389/filedesk/internal/assistant"
	"github.com/2389/filedesk/internal/files"
	"github.com/2389/filedesk/internal/store"
)

type citation struct {
	Name   string
	FileID string
}

type reply struct {
	Text      string
	Citations []citation
}

type fakeMessage struct {
	ID        string
	Role      string
	Content   string
	Citations []citation
}

type postedMessage struct {
	ThreadID string
	Content  string
}

type fakeRun struct {
	threadID string
	polls    int
	done     bool
	reply    reply
}

// fakeAPI is a scripted stand-in for the remote assistant service.
type fakeAPI struct {
	mu sync.Mutex

	nextID  int
	threads map[string][]*fakeMessage // oldest first
	runs    map[string]*fakeRun
	active  map[string]bool // thread id -> run in progress
	replies []reply
	files   map[string]string // file id -> filename

	calls   []string
	posted  []postedMessage
	deleted []string
	seeded  map[string][]assistant.Message

	pollsBeforeComplete int
	neverComplete       bool
	failCreateRun       bool
	failSeeded          bool
	failCreateThread    bool
	overlaps            int

	// getRunDelay makes GetRun hang like a slow upstream until its context ends.
	getRunDelay time.Duration
}

func newFakeAPI(replies ...reply) *fakeAPI {
	return &fakeAPI{
		threads: make(map[string][]*fakeMessage),
		runs:    make(map[string]*fakeRun),
		active:  make(map[string]bool),
		replies: replies,
		files:   make(map[string]string),
		seeded:  make(map[string][]assistant.Message),
	}
}

func (f *fakeAPI) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) addThread(id string, msgs ...*fakeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[id] = msgs
}

func (f *fakeAPI) CreateThread(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateThread")
	if f.failCreateThread {
		return nil, &assistant.StatusError{Op: "create thread", StatusCode: http.StatusInternalServerError}
	}
	id := f.id("thread")
	f.threads[id] = nil
	return json.Marshal(map[string]string{"id": id, "object": "thread"})
}

func (f *fakeAPI) CreateThreadWithMessages(ctx context.Context, messages []assistant.Message) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateThreadWithMessages")
	if f.failSeeded {
		return nil, &assistant.StatusError{Op: "create seeded thread", StatusCode: http.StatusBadRequest}
	}
	id := f.id("thread")
	var msgs []*fakeMessage
	for _, m := range messages {
		msgs = append(msgs, &fakeMessage{ID: f.id("msg"), Role: m.Role, Content: m.Content})
	}
	f.threads[id] = msgs
	f.seeded[id] = messages
	return json.Marshal(map[string]string{"id": id})
}

func (f *fakeAPI) DeleteThread(ctx context.Context, threadID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteThread " + threadID)
	delete(f.threads, threadID)
	f.deleted = append(f.deleted, threadID)
	return []byte(`{"deleted":true}`), nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID string, msg assistant.Message) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateMessage " + threadID)
	if _, ok := f.threads[threadID]; !ok {
		return nil, &assistant.StatusError{Op: "create message", StatusCode: http.StatusNotFound}
	}
	if f.active[threadID] {
		f.overlaps++
		return nil, &assistant.StatusError{Op: "create message", StatusCode: http.StatusBadRequest, Body: "run is active"}
	}
	f.posted = append(f.posted, postedMessage{ThreadID: threadID, Content: msg.Content})
	m := &fakeMessage{ID: f.id("msg"), Role: msg.Role, Content: msg.Content}
	f.threads[threadID] = append(f.threads[threadID], m)
	return json.Marshal(map[string]string{"id": m.ID})
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateRun " + threadID)
	if f.failCreateRun {
		return nil, &assistant.StatusError{Op: "create run", StatusCode: http.StatusInternalServerError, Body: "boom"}
	}
	run := &fakeRun{threadID: threadID}
	if len(f.replies) > 0 {
		run.reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	id := f.id("run")
	f.runs[id] = run
	f.active[threadID] = true
	return json.Marshal(map[string]string{"id": id, "status": "queued"})
}

func (f *fakeAPI) GetRun(ctx context.Context, threadID, runID string) ([]byte, error) {
	if f.getRunDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.getRunDelay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRun " + runID)
	run, ok := f.runs[runID]
	if !ok {
		return nil, &assistant.StatusError{Op: "get run", StatusCode: http.StatusNotFound}
	}

	status := "in_progress"
	if !f.neverComplete && run.polls >= f.pollsBeforeComplete {
		status = "completed"
		if !run.done {
			run.done = true
			f.active[threadID] = false
			f.threads[threadID] = append(f.threads[threadID], &fakeMessage{
				ID:        f.id("msg"),
				Role:      "assistant",
				Content:   run.reply.Text,
				Citations: run.reply.Citations,
			})
		}
	}
	run.polls++
	return json.Marshal(map[string]string{"id": runID, "status": status})
}

func messageJSON(m *fakeMessage) map[string]any {
	annotations := []map[string]any{}
	for i, c := range m.Citations {
		annotations = append(annotations, map[string]any{
			"type":          "file_citation",
			"text":          fmt.Sprintf("【4:%d†%s】", i, c.Name),
			"file_citation": map[string]string{"file_id": c.FileID},
		})
	}
	return map[string]any{
		"id":   m.ID,
		"role": m.Role,
		"content": []map[string]any{{
			"type": "text",
			"text": map[string]any{"value": m.Content, "annotations": annotations},
		}},
	}
}

func (f *fakeAPI) ListMessages(ctx context.Context, threadID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListMessages " + threadID)
	msgs, ok := f.threads[threadID]
	if !ok {
		return nil, &assistant.StatusError{Op: "list messages", StatusCode: http.StatusNotFound}
	}
	data := make([]map[string]any, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data = append(data, messageJSON(msgs[i]))
	}
	return json.Marshal(map[string]any{"object": "list", "data": data})
}

func (f *fakeAPI) GetMessage(ctx context.Context, threadID, messageID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetMessage " + messageID)
	for _, m := range f.threads[threadID] {
		if m.ID == messageID {
			return json.Marshal(messageJSON(m))
		}
	}
	return nil, &assistant.StatusError{Op: "get message", StatusCode: http.StatusNotFound}
}

func (f *fakeAPI) GetFile(ctx context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetFile " + fileID)
	name, ok := f.files[fileID]
	if !ok {
		return nil, &assistant.StatusError{Op: "get file", StatusCode: http.StatusNotFound}
	}
	return json.Marshal(map[string]string{"id": fileID, "filename": name})
}

func (f *fakeAPI) messages(threadID string) []*fakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeMessage(nil), f.threads[threadID]...)
}

// callCount counts calls to one operation, ignoring arguments.
func (f *fakeAPI) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.SplitN(c, " ", 2)[0] == op {
			n++
		}
	}
	return n
}

type sentText struct {
	ChatID, Text, ReplyTo string
}

type sentDocument struct {
	ChatID, Name, Path, ReplyTo string
}

// recordingDelivery captures everything the orchestrator sends.
type recordingDelivery struct {
	mu       sync.Mutex
	texts    []sentText
	docs     []sentDocument
	failText bool
	failDocs map[string]bool
}

func (d *recordingDelivery) SendText(ctx context.Context, chatID, text, replyTo string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failText {
		return fmt.Errorf("chat unavailable")
	}
	d.texts = append(d.texts, sentText{ChatID: chatID, Text: text, ReplyTo: replyTo})
	return nil
}

func (d *recordingDelivery) SendDocument(ctx context.Context, chatID string, file *files.LocalFile, replyTo string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDocs[file.Name] {
		return fmt.Errorf("upload rejected")
	}
	d.docs = append(d.docs, sentDocument{ChatID: chatID, Name: file.Name, Path: file.Path, ReplyTo: replyTo})
	return nil
}

type harness struct {
	api      *fakeAPI
	sessions *store.MemoryStore
	out      *recordingDelivery
	dir      string
	events   *EventBroadcaster
	orch     *Orchestrator
}

type harnessOption func(*Options)

func newHarness(t *testing.T, api *fakeAPI, opts ...harnessOption) *harness {
	t.Helper()
	return newHarnessWithStore(t, api, store.NewMemoryStore(), opts...)
}

func newHarnessWithStore(t *testing.T, api *fakeAPI, sessions store.SessionStore, opts ...harnessOption) *harness {
	t.Helper()

	dir := t.TempDir()
	events := NewEventBroadcaster(nil)
	t.Cleanup(events.Close)

	o := Options{
		RolloverThreshold: 20,
		PollInterval:      5 * time.Millisecond,
		PollTimeout:       2 * time.Second,
		SearchInstruction: "Return matching file names as JSON. ",
		Events:            events,
	}
	for _, opt := range opts {
		opt(&o)
	}

	parser := assistant.NewParser(nil)
	resolver := answer.NewResolver(answer.NewAPIFileNames(api, parser), nil)
	locator := files.NewLocator(files.Options{Dir: dir})
	out := &recordingDelivery{failDocs: map[string]bool{}}

	h := &harness{
		api:    api,
		out:    out,
		dir:    dir,
		events: events,
		orch:   New(api, sessions, resolver, locator, out, o),
	}
	if mem, ok := sessions.(*store.MemoryStore); ok {
		h.sessions = mem
	}
	return h
}

func (h *harness) writeFile(t *testing.T, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), make([]byte, size), 0644))
}
