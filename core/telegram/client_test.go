package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/getMe" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"username":"feedback_bot","first_name":"Feedback"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	id, err := c.GetMe(context.Background(), "123:abc")
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if id.ID != 42 || id.Username != "feedback_bot" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestGetMeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetMe(context.Background(), "123:bad")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 401 {
		t.Fatalf("code = %d, want 401", apiErr.Code)
	}
}

func TestSendMessageParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.SendMessage(context.Background(), "123:abc", 777, "<b>hi</b>", &SendOptions{ParseMode: "HTML"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got["chat_id"].(float64) != 777 {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if got["text"] != "<b>hi</b>" {
		t.Errorf("text = %v", got["text"])
	}
	if got["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", got["parse_mode"])
	}
}

func TestDeleteWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/deleteWebhook" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.DeleteWebhook(context.Background(), "123:abc", true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if got["drop_pending_updates"] != true {
		t.Errorf("drop_pending_updates = %v", got["drop_pending_updates"])
	}
}

func TestRedactErr(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAHdqTcvbXYz_abc/sendMessage": dial tcp: timeout`)
	cleaned := redactErr(err)
	if strings.Contains(cleaned.Error(), "AAHdqTcvbXYz") {
		t.Fatalf("token leaked: %v", cleaned)
	}
	if !strings.Contains(cleaned.Error(), "bot<redacted>") {
		t.Fatalf("missing redaction marker: %v", cleaned)
	}
}
