package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newCapturingService(t *testing.T) (*Service, *[]capturedMail) {
	t.Helper()
	svc := NewService(Config{
		Host:     "smtp.example.com",
		Port:     "587",
		From:     "noreply@certifai.test",
		FromName: "CertifAI",
		AppURL:   "https://app.certifai.test/",
	})
	var sent []capturedMail
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, capturedMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return svc, &sent
}

func TestSendWhenNotConfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendWelcomeEmail("a@example.com", "A"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendWelcomeEmail(t *testing.T) {
	svc, sent := newCapturingService(t)
	if err := svc.SendWelcomeEmail("ada@example.com", "Ada"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	mail := (*sent)[0]
	if mail.addr != "smtp.example.com:587" {
		t.Errorf("unexpected server %q", mail.addr)
	}
	for _, want := range []string{"To: ada@example.com", "From: CertifAI <noreply@certifai.test>", "Subject: Welcome to CertifAI", "Welcome, Ada!"} {
		if !strings.Contains(mail.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendPasswordResetEmailBuildsLink(t *testing.T) {
	svc, sent := newCapturingService(t)
	if err := svc.SendPasswordResetEmail("ada@example.com", "Ada", "tok123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := (*sent)[0].msg
	if !strings.Contains(msg, "https://app.certifai.test/reset-password?token=tok123") {
		t.Errorf("reset link missing from message:\n%s", msg)
	}
}

func TestSendDocumentSignedEmail(t *testing.T) {
	svc, sent := newCapturingService(t)
	err := svc.SendDocumentSignedEmail("owner@example.com", DocumentSignedData{
		UserName:    "Owner",
		Title:       "Lease",
		SignerName:  "Bob",
		Version:     3,
		ContentHash: "abc123",
		TxHash:      "0xdeadbeef",
		DocumentURL: svc.DocumentURL("doc_1"),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := (*sent)[0].msg
	for _, want := range []string{"version 3", "abc123", "0xdeadbeef", "https://app.certifai.test/documents/doc_1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestRenderTemplateEscapesUserInput(t *testing.T) {
	html, err := renderTemplate(welcomeEmailTemplate, WelcomeData{AppName: appName, UserName: "<b>x</b>"})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "<b>x</b>") {
		t.Error("user name should be escaped")
	}
}
