package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type recordingNotifier struct {
	got []Alert
	err error
}

func (r *recordingNotifier) Send(ctx context.Context, a Alert) error {
	r.got = append(r.got, a)
	return r.err
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("smtp down")}
	m := Multi{bad, ok}

	err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("err = %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Error("every backend should be attempted")
	}
}

func TestDispatcher_SwallowsErrors(t *testing.T) {
	bad := &recordingNotifier{err: errors.New("boom")}
	d := NewDispatcher(bad, time.Second)
	d.Notify(context.Background(), AlertCritical, "Order failed", "pair=%s", "XBT/USD")

	if len(bad.got) != 1 || bad.got[0].Message != "pair=XBT/USD" || bad.got[0].Level != AlertCritical {
		t.Fatalf("got = %+v", bad.got)
	}
}

func TestDispatcher_DeliversAfterCancel(t *testing.T) {
	rec := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewDispatcher(rec, time.Second).Notify(ctx, AlertInfo, "shutdown", "bye")
	if len(rec.got) != 1 {
		t.Fatal("alert dropped on cancelled parent context")
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Notify(context.Background(), AlertInfo, "x", "y")
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		got <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Level: AlertWarning, Title: "Data fetch", Message: "timeout"})
	if err != nil {
		t.Fatal(err)
	}
	body := <-got
	if body["level"] != "WARNING" || body["title"] != "Data fetch" || body["message"] != "timeout" {
		t.Errorf("body = %v", body)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var hits atomic.Int32
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		got <- string(b)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	n := newTelegramNotifier(srv.URL, "TOKEN", "42")
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "SELL", Message: "0.5 XBT @ 61000.5"}); err != nil {
		t.Fatal(err)
	}
	body := <-got
	if !strings.Contains(body, `"chat_id":"42"`) || !strings.Contains(body, `61000\\.5`) {
		t.Errorf("body = %s", body)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b.c!"); got != `a\_b\.c\!` {
		t.Errorf("got %q", got)
	}
}

func TestEmailNotifier_Compose(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n := NewEmailNotifier(EmailConfig{Server: "smtp.example.com", Port: 587, From: "bot@example.com", Password: "pw"})
	n.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Balance\nlow", Message: "line1\nline2"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "bot@example.com" {
		t.Errorf("addr=%s from=%s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "bot@example.com" {
		t.Errorf("to defaults to sender, got %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: [WARNING] Balance low\r\n") {
		t.Errorf("subject header wrong:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2\r\n") {
		t.Errorf("body wrong:\n%q", msg)
	}
}

func TestEmailNotifier_ContextBoundsWait(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Server: "smtp.example.com", Port: 587, From: "a@b"})
	block := make(chan struct{})
	defer close(block)
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, Alert{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
