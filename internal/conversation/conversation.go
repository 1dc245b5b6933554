// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conversation tracks per-conversation metadata and message
// history in process memory. State lives only as long as the process;
// durable cross-turn parameter state belongs to the progressive store.
package conversation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metadata describes one conversation.
type Metadata struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	APIURL       string    `json:"api_url,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Input          string          `json:"input"`
	EndpointID     string          `json:"endpoint_id,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
}

// Manager owns conversation state behind a read/write lock. Readers
// never block each other; writers hold the lock only for the map
// update.
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*Metadata
	messages      map[string][]Message
	logger        *slog.Logger
}

// NewManager creates an empty Manager. A nil logger falls back to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conversations: make(map[string]*Metadata),
		messages:      make(map[string][]Message),
		logger:        logger,
	}
}

// Start registers a new conversation under a minted UUID and returns
// its id.
func (m *Manager) Start(email, apiURL string) string {
	id := uuid.New().String()
	m.register(id, email, apiURL)
	m.logger.Info("started conversation", "conversation_id", id, "email", email)
	return id
}

// Ensure resolves the conversation id for a request. An empty id mints
// a fresh conversation; a non-empty client-supplied id is kept as-is
// and registered on first sight rather than verified against past
// state.
func (m *Manager) Ensure(id, email, apiURL string) string {
	if id == "" {
		return m.Start(email, apiURL)
	}
	if m.register(id, email, apiURL) {
		m.logger.Debug("adopted client conversation id", "conversation_id", id, "email", email)
	}
	return id
}

// register inserts metadata for id unless it already exists. Reports
// whether a new conversation was created.
func (m *Manager) register(id, email, apiURL string) bool {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; ok {
		return false
	}
	m.conversations[id] = &Metadata{
		ID:           id,
		Email:        email,
		CreatedAt:    now,
		LastActivity: now,
		APIURL:       apiURL,
	}
	m.messages[id] = nil
	return true
}

// Get returns a copy of the conversation's metadata.
func (m *Manager) Get(id string) (Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.conversations[id]
	if !ok {
		return Metadata{}, false
	}
	return *meta, true
}

// AddMessage appends one turn to the conversation and bumps its
// activity metadata.
func (m *Manager) AddMessage(conversationID, input, endpointID string, parameters json.RawMessage) error {
	msg := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Input:          input,
		EndpointID:     endpointID,
		Parameters:     parameters,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	meta.LastActivity = msg.Timestamp
	meta.MessageCount++
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	m.logger.Debug("recorded conversation message",
		"conversation_id", conversationID,
		"endpoint_id", endpointID,
		"message_count", meta.MessageCount)
	return nil
}

// History returns a copy of the conversation's messages in arrival
// order.
func (m *Manager) History(id string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[id]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
