// Package email sends account and document notices over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"net/url"
	"strings"
)

const appName = "CertifAI"

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// AppURL is the front end origin used to build links.
	AppURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, plainBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	return s.send(s.server, s.auth, s.config.From, to, s.buildMessage(to, subject, plainBody, htmlBody))
}

func (s *Service) buildMessage(to []string, subject, plainBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "certifai-alt"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", plainBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type WelcomeData struct {
	AppName  string
	UserName string
	AppURL   string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type DocumentSignedData struct {
	AppName     string
	UserName    string
	Title       string
	SignerName  string
	Version     int
	ContentHash string
	TxHash      string
	DocumentURL string
}

func (s *Service) SendWelcomeEmail(to, userName string) error {
	data := WelcomeData{AppName: appName, UserName: userName, AppURL: s.config.AppURL}
	html, err := renderTemplate(welcomeEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}
	plain := fmt.Sprintf("Welcome to %s, %s. Sign in at %s to start drafting documents.", appName, userName, s.config.AppURL)
	return s.SendHTMLEmail([]string{to}, "Welcome to "+appName, plain, html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetToken string) error {
	resetURL := s.link("/reset-password", url.Values{"token": {resetToken}})
	data := PasswordResetData{AppName: appName, UserName: userName, ResetURL: resetURL}
	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	plain := fmt.Sprintf("Reset your %s password within one hour: %s", appName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+appName+" password", plain, html)
}

// SendDocumentSignedEmail notifies a document owner that a version was signed.
func (s *Service) SendDocumentSignedEmail(to string, data DocumentSignedData) error {
	data.AppName = appName
	if data.DocumentURL == "" {
		data.DocumentURL = s.config.AppURL
	}
	html, err := renderTemplate(documentSignedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render document signed template: %w", err)
	}
	plain := fmt.Sprintf("%s signed %q (version %d). Content hash: %s", data.SignerName, data.Title, data.Version, data.ContentHash)
	return s.SendHTMLEmail([]string{to}, fmt.Sprintf("%q was signed", data.Title), plain, html)
}

// DocumentURL builds the front end link for a document.
func (s *Service) DocumentURL(documentID string) string {
	return s.link("/documents/"+url.PathEscape(documentID), nil)
}

func (s *Service) link(path string, query url.Values) string {
	base := strings.TrimRight(s.config.AppURL, "/")
	if len(query) > 0 {
		return base + path + "?" + query.Encode()
	}
	return base + path
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2933; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1d4ed8; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1d4ed8; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .mono { font-family: ui-monospace, Menlo, monospace; word-break: break-all; font-size: 12px; }`

const welcomeEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Welcome to {{.AppName}}</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Your account is ready. Draft, sign, and verify documents from your dashboard.</p>
    {{if .AppURL}}<p><a href="{{.AppURL}}" class="button">Open {{.AppName}}</a></p>{{end}}
    <div class="footer"><p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p></div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password. The link below expires in 1 hour.</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p class="mono">{{.ResetURL}}</p>
    <div class="footer"><p>If you didn't request a password reset, your password stays unchanged.</p></div>
</body>
</html>`

const documentSignedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}} was signed</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.UserName}},</p>
    <p><strong>{{.SignerName}}</strong> signed <strong>{{.Title}}</strong> (version {{.Version}}).</p>
    <p>Content hash:</p>
    <p class="mono">{{.ContentHash}}</p>
    {{if .TxHash}}<p>Anchored in transaction:</p><p class="mono">{{.TxHash}}</p>{{end}}
    <p><a href="{{.DocumentURL}}" class="button">View Document</a></p>
</body>
</html>`
