// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithConfig(&ClientConfig{
		BaseURL:           server.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		PropagationDelay:  -1,
	})
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test/"})

	if c.BaseURL() != "http://example.test" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
	}
	if c.config.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.config.Timeout, defaultTimeout)
	}
	if c.config.Burst != defaultBurst {
		t.Errorf("Burst = %d, want %d", c.config.Burst, defaultBurst)
	}
}

func TestNewClient_NilConfig(t *testing.T) {
	c := NewClientWithConfig(nil)
	if c.BaseURL() != defaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), defaultBaseURL)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestSendMessage_NullChatIDOnFirstMessage(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`{"response":"<p>Bonjour</p>","chat_id":"chat-1"}`))
	})

	resp, err := c.SendMessage(context.Background(), SendRequest{UserInput: "salut", UserID: "u1"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if resp.ChatID != "chat-1" || resp.Response != "<p>Bonjour</p>" {
		t.Errorf("SendMessage() = %+v", resp)
	}

	if v, ok := body["chat_id"]; !ok || v != nil {
		t.Errorf("chat_id = %v (present %v), want explicit null", v, ok)
	}
	if body["user_input"] != "salut" || body["user_id"] != "u1" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestSendMessage_ReusesChatID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body sendWire
		json.NewDecoder(r.Body).Decode(&body)
		if body.ChatID == nil || *body.ChatID != "chat-9" {
			t.Errorf("chat_id = %v, want chat-9", body.ChatID)
		}
		w.Write([]byte(`{"response":"ok","chat_id":"chat-9"}`))
	})

	if _, err := c.SendMessage(context.Background(), SendRequest{UserInput: "x", UserID: "u", ChatID: "chat-9"}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

func TestFetchMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/chat 1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"messages":[{"text":"a","sender":"user"},{"text":"<b>b</b>","sender":"bot","isHtml":true}]}`))
	})

	msgs, err := c.FetchMessages(context.Background(), "chat 1")
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[1].Sender != "bot" || !msgs[1].IsHTML {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantMsg  string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrTypeServer, "boom"},
		{"bad request", http.StatusBadRequest, `{"message":"missing user"}`, ErrTypeInvalidRequest, "missing user"},
		{"not found", http.StatusNotFound, ``, ErrTypeNotFound, "Not Found"},
		{"gateway timeout", http.StatusGatewayTimeout, `not json`, ErrTypeTimeout, "Gateway Timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := c.FetchMessages(context.Background(), "c")
			var ce *ClientError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ClientError", err)
			}
			if ce.Type != tc.wantType {
				t.Errorf("Type = %v, want %v", ce.Type, tc.wantType)
			}
			if ce.Status != tc.status {
				t.Errorf("Status = %d, want %d", ce.Status, tc.status)
			}
			if !strings.Contains(ce.Error(), tc.wantMsg) {
				t.Errorf("Error() = %q, want it to contain %q", ce.Error(), tc.wantMsg)
			}
		})
	}
}

func TestConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	_, err := c.ListChatHistories(context.Background(), "u")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

// =============================================================================
// OCR & UPLOAD TESTS
// =============================================================================

func TestFetchOCRResult_NotReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/GetOCRResult" || r.URL.Query().Get("id") != "https://blob/f 1.pdf" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		http.NotFound(w, r)
	})

	_, err := c.FetchOCRResult(context.Background(), "https://blob/f 1.pdf")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("not-ready must not also match ErrNotFound")
	}
}

func TestFetchOCRResult_Text(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"Facture n°42"}`))
	})

	text, err := c.FetchOCRResult(context.Background(), "f1")
	if err != nil {
		t.Fatalf("FetchOCRResult() error = %v", err)
	}
	if text != "Facture n°42" {
		t.Errorf("text = %q", text)
	}
}

func TestUploadFile_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("user_id"); got != "u1" {
			t.Errorf("user_id = %q", got)
		}
		if got := r.FormValue("chat_id"); got != "c1" {
			t.Errorf("chat_id = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "scan.png" || string(data) != "PNGDATA" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part Content-Type = %q", ct)
		}
		w.Write([]byte(`{"fileUrl":"https://blob/scan.png"}`))
	})

	id, err := c.UploadFile(context.Background(), UploadRequest{
		FileName:    "scan.png",
		ContentType: "image/png",
		Content:     strings.NewReader("PNGDATA"),
		UserID:      "u1",
		ChatID:      "c1",
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if id != "https://blob/scan.png" {
		t.Errorf("file id = %q", id)
	}
}

func TestUploadFile_PrefersFileID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fileUrl":"https://blob/x","file_id":"42"}`))
	})

	id, err := c.UploadFile(context.Background(), UploadRequest{FileName: "x", Content: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if id != "42" {
		t.Errorf("file id = %q, want 42", id)
	}
}

func TestUploadFile_NoReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.UploadFile(context.Background(), UploadRequest{FileName: "x", Content: strings.NewReader("x")})
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeInvalidResponse {
		t.Errorf("error = %v, want invalid response", err)
	}
}

// =============================================================================
// CHAT HISTORY TESTS
// =============================================================================

func TestCreateAndListChats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/chat-histories":
			var body createChatWire
			json.NewDecoder(r.Body).Decode(&body)
			if body.UserID != "u1" || body.Title != "Nouvelle conversation" {
				t.Errorf("create body = %+v", body)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"chat_id":"c7"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/chat-histories/u1":
			w.Write([]byte(`[{"chat_id":"c7","title":"Nouvelle conversation"}]`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	id, err := c.CreateChat(context.Background(), "u1", "Nouvelle conversation")
	if err != nil || id != "c7" {
		t.Fatalf("CreateChat() = %q, %v", id, err)
	}

	chats, err := c.ListChatHistories(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListChatHistories() error = %v", err)
	}
	if len(chats) != 1 || chats[0].ChatID != "c7" {
		t.Errorf("chats = %+v", chats)
	}
}

func TestDeleteAllChatHistories_WaitsPropagationDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat-histories/u1/all" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: server.URL, PropagationDelay: 50 * time.Millisecond})

	start := time.Now()
	if err := c.DeleteAllChatHistories(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteAllChatHistories() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, want at least the propagation delay", elapsed)
	}
}

func TestDeleteAllChatHistories_ContextCanceledDuringDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: server.URL, PropagationDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.DeleteAllChatHistories(ctx, "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
