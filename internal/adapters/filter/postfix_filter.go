package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
)

const sourcePostfix = "postfix"

// MessageObserver records the outcome of each handled message
type MessageObserver interface {
	ObserveMessage(source string, err error)
}

// PostfixFilter implements a Postfix content filter: it receives a message
// over SMTP, annotates it with the triage decision and re-injects it
type PostfixFilter struct {
	service        *core.TriageService
	observer       MessageObserver
	logger         *zap.Logger
	listenAddr     string
	server         *smtp.Server
	headers        config.HeaderNames
	postfixAddr    string
	postfixPort    int
	postfixEnabled bool

	// forward re-injects an annotated message; replaced in tests
	forward func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.TriageService,
	observer MessageObserver,
	logger *zap.Logger,
	server config.ServerConfig,
) *PostfixFilter {
	f := &PostfixFilter{
		service:        service,
		observer:       observer,
		logger:         logger,
		listenAddr:     server.ListenAddress,
		headers:        server.Headers,
		postfixAddr:    server.Postfix.Address,
		postfixPort:    server.Postfix.Port,
		postfixEnabled: server.Postfix.Enabled,
	}
	f.forward = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies a raw message without re-injecting it
func (f *PostfixFilter) ProcessEmail(ctx context.Context, id string, raw io.Reader) (*core.Classified, error) {
	_, result, err := f.service.ProcessMessage(ctx, id, raw)
	return result, err
}

// handle classifies, annotates and forwards one received message
func (f *PostfixFilter) handle(sender string, recipients []string, raw []byte) error {
	id := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, result, classifyErr := f.service.ProcessMessage(ctx, id, bytes.NewReader(raw))
	if classifyErr != nil {
		f.logger.Error("Failed to classify message, forwarding unmodified",
			zap.String("message_id", id),
			zap.String("sender", sender),
			zap.Error(classifyErr))
	}

	annotated, err := AnnotateMessage(raw, f.headers, result, classifyErr)
	if err != nil {
		f.logger.Warn("Failed to rewrite message headers", zap.String("message_id", id), zap.Error(err))
	}

	if f.postfixEnabled {
		if err := f.forward(sender, recipients, annotated); err != nil {
			f.logger.Error("Failed to send message back to Postfix",
				zap.String("message_id", id),
				zap.String("sender", sender),
				zap.Error(err))
			if f.observer != nil {
				f.observer.ObserveMessage(sourcePostfix, err)
			}
			return err
		}
	} else {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
	}

	if f.observer != nil {
		f.observer.ObserveMessage(sourcePostfix, classifyErr)
	}
	if result != nil {
		f.logger.Info("Processed message",
			zap.String("message_id", id),
			zap.String("sender", sender),
			zap.String("label", result.PrimaryLabel),
			zap.String("folder", result.PrimaryFolder))
	}
	return nil
}

// sendToPostfix sends the processed message back to Postfix on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	postfixAddr := net.JoinHostPort(f.postfixAddr, fmt.Sprint(f.postfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient", zap.String("recipient", recipient), zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// already delivered
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the message data
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.handle(s.sender, s.recipients, raw)
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
