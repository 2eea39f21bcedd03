// Package conversation implements the Conversation Manager: bounded
// per-conversation history, tail-window prompt selection, at-most-once
// dispatch for identical turns, and fire-and-forget persistence.
package conversation

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/pipeline"
)

// Message is one turn appended to a Conversation.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Conversation is one conversation's append-only message history.
type Conversation struct {
	ID        string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

type convRecord struct {
	conv         *Conversation
	lastAccessed time.Time
	elem         *list.Element
}

type replyRecord struct {
	key      string
	reply    string
	cachedAt time.Time
	elem     *list.Element
}

// Persister writes a conversation snapshot to the external sink. Errors
// are logged by the implementation and never surfaced to the chat caller — this is
// the one place a failure is allowed to pass silently, since persistence
// is best-effort.
type Persister interface {
	StoreAsync(ctx context.Context, sessionID, userMessage, assistantMessage string)
}

// Retriever embeds a query and returns formatted top-K context passages,
// folded into the prompt window ahead of the LLM call when RAG is enabled.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// Config bounds the Manager's caches and prompt-window size.
type Config struct {
	ConversationCapacity int
	ConversationIdleTTL  time.Duration
	ResponseCacheCap     int
	ResponseCacheTTL     time.Duration
	PromptWindowTurns    int // K: last K turns = 2K messages

	LLM          pipeline.LLMChatClient
	SystemPrompt string
	Model        string
	Engine       string
	Persister    Persister // nil disables persistence
	Retriever    Retriever // nil disables RAG
}

// Manager is the Conversation Manager: two LRUs (conversations, response
// cache) each guarded by their own mutex, sized independently.
type Manager struct {
	cfg Config

	convMu    sync.Mutex
	convOrder *list.List
	convByID  map[string]*convRecord

	replyMu    sync.Mutex
	replyOrder *list.List
	replyByKey map[string]*replyRecord
}

// New creates a Manager with the given configuration.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:        cfg,
		convOrder:  list.New(),
		convByID:   make(map[string]*convRecord),
		replyOrder: list.New(),
		replyByKey: make(map[string]*replyRecord),
	}
}

// ChatResult is the outcome of one chat_with_history call.
type ChatResult struct {
	ConversationID string
	Reply          string
	RetrievedUsed  string
}

// Chat runs one non-streaming turn: response-cache lookup, append user
// turn, call the LLM outside any lock, append assistant turn, cache the
// reply, dispatch best-effort persistence, and sweep both LRUs
// occasionally. The conversations lock is held only around metadata
// mutation, never across the LLM call, so one slow completion can't
// stall every other conversation.
func (m *Manager) Chat(ctx context.Context, convID, userMessage string) (ChatResult, error) {
	if convID == "" {
		convID = uuid.NewString()
	}

	fingerprint := convID + "\x00" + userMessage
	if reply, ok := m.lookupReply(fingerprint); ok {
		return ChatResult{ConversationID: convID, Reply: reply}, nil
	}

	window, ragContext := m.appendUserTurn(ctx, convID, userMessage)

	result, err := m.cfg.LLM.Chat(ctx, window, ragContext, m.cfg.SystemPrompt, m.cfg.Model, nil)
	if err != nil {
		return ChatResult{}, err
	}

	m.appendAssistantTurn(convID, result.Text)
	m.cacheReply(fingerprint, result.Text)
	m.dispatchPersistence(ctx, convID, userMessage, result.Text)
	m.maybeSweep()

	return ChatResult{ConversationID: convID, Reply: result.Text, RetrievedUsed: ragContext}, nil
}

// ChatStream runs the streaming variant: the provider yields tokens via
// onToken while this call accumulates the full reply, then performs the
// same append/cache/persist steps as Chat on completion.
func (m *Manager) ChatStream(ctx context.Context, convID, userMessage string, onToken pipeline.TokenCallback) (ChatResult, error) {
	if convID == "" {
		convID = uuid.NewString()
	}

	fingerprint := convID + "\x00" + userMessage
	if reply, ok := m.lookupReply(fingerprint); ok {
		if onToken != nil {
			onToken(reply)
		}
		return ChatResult{ConversationID: convID, Reply: reply}, nil
	}

	window, ragContext := m.appendUserTurn(ctx, convID, userMessage)

	result, err := m.cfg.LLM.Chat(ctx, window, ragContext, m.cfg.SystemPrompt, m.cfg.Model, onToken)
	if err != nil {
		return ChatResult{}, err
	}

	m.appendAssistantTurn(convID, result.Text)
	m.cacheReply(fingerprint, result.Text)
	m.dispatchPersistence(ctx, convID, userMessage, result.Text)
	m.maybeSweep()

	return ChatResult{ConversationID: convID, Reply: result.Text, RetrievedUsed: ragContext}, nil
}

func (m *Manager) lookupReply(fingerprint string) (string, bool) {
	m.replyMu.Lock()
	defer m.replyMu.Unlock()

	r, ok := m.replyByKey[fingerprint]
	if !ok || time.Since(r.cachedAt) >= m.cfg.ResponseCacheTTL {
		return "", false
	}
	m.replyOrder.MoveToFront(r.elem)
	return r.reply, true
}

// appendUserTurn acquires the conversations lock only long enough to
// append the user turn and snapshot the prompt window, then releases it
// before any RAG or LLM call happens.
func (m *Manager) appendUserTurn(ctx context.Context, convID, userMessage string) ([]pipeline.Message, string) {
	now := time.Now()

	m.convMu.Lock()
	conv := m.getOrCreateConvLocked(convID, now)
	conv.Messages = append(conv.Messages, Message{Role: "user", Content: userMessage, Timestamp: now})
	conv.UpdatedAt = now
	window := tailWindow(conv.Messages, m.cfg.PromptWindowTurns)
	m.convMu.Unlock()

	var ragContext string
	if m.cfg.Retriever != nil {
		if ctxText, err := m.cfg.Retriever.RetrieveContext(ctx, userMessage); err == nil {
			ragContext = ctxText
		}
	}

	return toPipelineMessages(window), ragContext
}

func (m *Manager) appendAssistantTurn(convID, reply string) {
	now := time.Now()

	m.convMu.Lock()
	defer m.convMu.Unlock()

	rec, ok := m.convByID[convID]
	if !ok {
		return
	}
	rec.conv.Messages = append(rec.conv.Messages, Message{Role: "assistant", Content: reply, Timestamp: now})
	rec.conv.UpdatedAt = now
	rec.lastAccessed = now
	m.convOrder.MoveToFront(rec.elem)
}

func (m *Manager) getOrCreateConvLocked(convID string, now time.Time) *Conversation {
	if rec, ok := m.convByID[convID]; ok {
		rec.lastAccessed = now
		m.convOrder.MoveToFront(rec.elem)
		return rec.conv
	}

	conv := &Conversation{ID: convID, CreatedAt: now, UpdatedAt: now}
	rec := &convRecord{conv: conv, lastAccessed: now}

	if m.convOrder.Len() >= m.cfg.ConversationCapacity {
		m.evictOldestConvLocked()
	}
	rec.elem = m.convOrder.PushFront(rec)
	m.convByID[convID] = rec
	metrics.ConversationsActive.Inc()
	return conv
}

func (m *Manager) evictOldestConvLocked() {
	oldest := m.convOrder.Back()
	if oldest == nil {
		return
	}
	rec := oldest.Value.(*convRecord)
	m.convOrder.Remove(oldest)
	delete(m.convByID, rec.conv.ID)
	metrics.ConversationsActive.Dec()
}

func (m *Manager) cacheReply(fingerprint, reply string) {
	m.replyMu.Lock()
	defer m.replyMu.Unlock()

	if r, ok := m.replyByKey[fingerprint]; ok {
		r.reply = reply
		r.cachedAt = time.Now()
		m.replyOrder.MoveToFront(r.elem)
		return
	}

	if m.replyOrder.Len() >= m.cfg.ResponseCacheCap {
		oldest := m.replyOrder.Back()
		if oldest != nil {
			old := oldest.Value.(*replyRecord)
			m.replyOrder.Remove(oldest)
			delete(m.replyByKey, old.key)
		}
	}

	r := &replyRecord{key: fingerprint, reply: reply, cachedAt: time.Now()}
	r.elem = m.replyOrder.PushFront(r)
	m.replyByKey[fingerprint] = r
}

func (m *Manager) dispatchPersistence(ctx context.Context, convID, userMessage, reply string) {
	if m.cfg.Persister == nil {
		return
	}
	m.cfg.Persister.StoreAsync(ctx, convID, userMessage, reply)
}

// maybeSweep runs roughly 1-in-10 calls, amortizing TTL cleanup over the
// request stream instead of running it on every call.
func (m *Manager) maybeSweep() {
	if rand.Intn(10) != 0 {
		return
	}
	m.sweepConversations()
	m.sweepReplies()
}

func (m *Manager) sweepConversations() {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	now := time.Now()
	var next *list.Element
	for e := m.convOrder.Back(); e != nil; e = next {
		rec := e.Value.(*convRecord)
		if now.Sub(rec.lastAccessed) < m.cfg.ConversationIdleTTL {
			break
		}
		next = e.Prev()
		m.convOrder.Remove(e)
		delete(m.convByID, rec.conv.ID)
		metrics.ConversationsActive.Dec()
	}
}

func (m *Manager) sweepReplies() {
	m.replyMu.Lock()
	defer m.replyMu.Unlock()

	now := time.Now()
	var next *list.Element
	for e := m.replyOrder.Back(); e != nil; e = next {
		rec := e.Value.(*replyRecord)
		if now.Sub(rec.cachedAt) < m.cfg.ResponseCacheTTL {
			break
		}
		next = e.Prev()
		m.replyOrder.Remove(e)
		delete(m.replyByKey, rec.key)
	}
}

// tailWindow returns the last K turns (2K messages) of messages, a
// contiguous suffix.
func tailWindow(messages []Message, k int) []Message {
	limit := 2 * k
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func toPipelineMessages(messages []Message) []pipeline.Message {
	out := make([]pipeline.Message, len(messages))
	for i, m := range messages {
		out[i] = pipeline.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
