// Copyright 2026 The PlantOps Authors
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

package audit

import (
	"context"
	"errors"
	"testing"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"hash", true},
		{"password_hash", true},
		{"credential", true},
		{"private_key", true},
		{"user_id", false},
		{"tenant", false},
		{"email", false},
		{"status", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

type recordingStore struct {
	events []Event
	err    error
}

func (s *recordingStore) Append(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type countingLogger struct {
	count int
}

func (l *countingLogger) Log(_ context.Context, _ Event) { l.count++ }

// TestPurpose: Validates that the persistent logger writes through to the
// store and that store failures never suppress the log emission.
// Scope: Unit Test
// Expected: Events reach both sinks; a failing store still logs.
func TestAudit_PersistentLogger(t *testing.T) {
	store := &recordingStore{}
	next := &countingLogger{}
	l := NewPersistentLogger(store, next)

	l.Log(context.Background(), Event{Type: TypeTokenIssued, Tenant: "t1", Subject: "t1:u1", Module: "quality"})

	if next.count != 1 {
		t.Errorf("wrapped logger called %d times, want 1", next.count)
	}
	if len(store.events) != 1 {
		t.Fatalf("store has %d events, want 1", len(store.events))
	}
	if store.events[0].Timestamp.IsZero() {
		t.Error("persisted event missing timestamp")
	}

	store.err = errors.New("connection lost")
	l.Log(context.Background(), Event{Type: TypeTokenRevoked, Tenant: "t1"})
	if next.count != 2 {
		t.Errorf("wrapped logger called %d times after store failure, want 2", next.count)
	}
}
