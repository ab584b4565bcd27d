//go:build integration

package imapbox

import (
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running IMAP server.
// Start one with: docker compose up -d
//
// Run tests with: go test -tags=integration -v ./...
//
// Note: These tests modify the global TLSSkipVerify variable and use a mutex
// to prevent race conditions. Do not run with t.Parallel() at the top level.

const (
	testIMAPHost  = "localhost"
	testIMAPSPort = 3993
	testSMTPPort  = 3025
	testUser      = "testuser@localhost"
	testPass      = "testpass"
)

var tlsSkipVerifyMu sync.Mutex

func getTestConfig() (host string, imapsPort, smtpPort int) {
	host = testIMAPHost
	imapsPort = testIMAPSPort
	smtpPort = testSMTPPort

	if h := os.Getenv("IMAP_TEST_HOST"); h != "" {
		host = h
	}
	return host, imapsPort, smtpPort
}

func waitForServer(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server %s:%d not ready after %v", host, port, timeout)
}

func sendTestEmail(host string, port int, from, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
	return smtp.SendMail(addr, nil, from, []string{to}, []byte(msg))
}

func setupTestMailbox(t *testing.T) *Mailbox {
	t.Helper()

	host, imapsPort, smtpPort := getTestConfig()

	if err := waitForServer(host, imapsPort, 30*time.Second); err != nil {
		t.Skipf("IMAP server not available: %v (run: docker compose up -d)", err)
	}
	if err := waitForServer(host, smtpPort, 30*time.Second); err != nil {
		t.Skipf("SMTP server not available: %v (run: docker compose up -d)", err)
	}

	// GreenMail presents a self-signed certificate on the IMAPS port.
	tlsSkipVerifyMu.Lock()
	oldSkipVerify := TLSSkipVerify
	TLSSkipVerify = true
	t.Cleanup(func() {
		TLSSkipVerify = oldSkipVerify
		tlsSkipVerifyMu.Unlock()
	})

	// GreenMail creates users on first login attempt.
	mb := NewMailbox(host, imapsPort, testUser, testPass, "")
	if err := mb.Connect(); err != nil {
		t.Skipf("Could not connect to IMAP server: %v", err)
	}
	t.Cleanup(func() { _ = mb.Disconnect() })

	return mb
}

func drainMailbox(t *testing.T, mb *Mailbox) {
	t.Helper()
	keys, err := mb.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) == 0 {
		return
	}
	if err := mb.Remove(keys.String()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestIntegration_KeysAndGet(t *testing.T) {
	mb := setupTestMailbox(t)
	drainMailbox(t, mb)

	host, _, smtpPort := getTestConfig()
	for i := 1; i <= 3; i++ {
		subject := fmt.Sprintf("Integration %d", i)
		if err := sendTestEmail(host, smtpPort, "sender@localhost", testUser, subject, "body"); err != nil {
			t.Fatalf("send email %d: %v", i, err)
		}
	}
	time.Sleep(time.Second)

	keys, err := mb.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("len(keys) = %d, want 3", len(keys))
	}

	msg, err := mb.Get(keys[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if msg.BodyLoaded() {
		t.Error("Get preloaded the body")
	}
	if !strings.HasPrefix(msg.Subject(), "Integration ") {
		t.Errorf("Subject() = %q", msg.Subject())
	}
	text, err := msg.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.TrimSpace(text) != "body" {
		t.Errorf("Text() = %q", text)
	}
}

func TestIntegration_SearchMacros(t *testing.T) {
	mb := setupTestMailbox(t)
	drainMailbox(t, mb)

	host, _, smtpPort := getTestConfig()
	if err := sendTestEmail(host, smtpPort, "sender@localhost", testUser, "macro target", "findme please"); err != nil {
		t.Fatalf("send email: %v", err)
	}
	time.Sleep(time.Second)

	uids, err := mb.Search("FIND findme TODAY")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(uids) != 1 {
		t.Errorf("Search matched %d messages, want 1", len(uids))
	}

	uids, err = mb.Search("FIND absent-token TODAY")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(uids) != 0 {
		t.Errorf("Search matched %d messages, want 0", len(uids))
	}
}

func TestIntegration_AddRoundTrip(t *testing.T) {
	mb := setupTestMailbox(t)
	drainMailbox(t, mb)

	raw := []byte("From: sender@localhost\r\nSubject: appended\r\n\r\nappended body\r\n")
	if err := mb.Add(raw, "INBOX"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := mb.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() = %d, want 1", n)
	}

	keys, _ := mb.Keys()
	msg, err := mb.Get(keys[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if msg.Subject() != "appended" {
		t.Errorf("Subject() = %q", msg.Subject())
	}
}

func TestIntegration_DiscardAndRemove(t *testing.T) {
	mb := setupTestMailbox(t)
	drainMailbox(t, mb)

	host, _, smtpPort := getTestConfig()
	for i := 1; i <= 2; i++ {
		if err := sendTestEmail(host, smtpPort, "sender@localhost", testUser, fmt.Sprintf("doomed %d", i), "x"); err != nil {
			t.Fatalf("send email: %v", err)
		}
	}
	time.Sleep(time.Second)

	keys, err := mb.Keys()
	if err != nil || len(keys) != 2 {
		t.Fatalf("Keys = %v, %v", keys, err)
	}

	// Discard flags without removing.
	if err := mb.Discard(keys[0]); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	after, err := mb.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("len(keys) after Discard = %d, want 2", len(after))
	}

	// Remove expunges.
	if err := mb.Remove(keys[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	after, err = mb.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(after) != 1 {
		t.Errorf("len(keys) after Remove = %d, want 1", len(after))
	}

	if err := mb.Delete(after[0]); !errors.Is(err, ErrUseDiscard) {
		t.Errorf("Delete error = %v, want ErrUseDiscard", err)
	}
}

func TestIntegration_ListFolders(t *testing.T) {
	mb := setupTestMailbox(t)

	sawInbox := false
	for f, err := range mb.ListFolders() {
		if err != nil {
			t.Fatalf("ListFolders: %v", err)
		}
		if strings.EqualFold(f.Path, "INBOX") {
			sawInbox = true
		}
	}
	if !sawInbox {
		t.Error("INBOX missing from folder list")
	}
}

func TestIntegration_Capability(t *testing.T) {
	mb := setupTestMailbox(t)

	caps, err := mb.Capability()
	if err != nil {
		t.Fatalf("Capability: %v", err)
	}
	if !strings.Contains(strings.ToUpper(caps), "IMAP4REV1") {
		t.Errorf("Capability() = %q", caps)
	}
}
