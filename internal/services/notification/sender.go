package notification

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"amerifund/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewSenderFromConfig builds the transport selected by notify.transport.
// The returned closer must be called on shutdown.
func NewSenderFromConfig(cfg *config.Config, log *zap.Logger) (Sender, io.Closer, error) {
	switch strings.ToLower(cfg.Notify.Transport) {
	case "smtp":
		return NewSMTPSender(cfg.SMTP), nopCloser{}, nil
	case "kafka":
		s := NewKafkaSender(&kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            cfg.Kafka.MaxRetries,
			AllowAutoTopicCreation: true,
		})
		return s, s, nil
	case "log", "":
		return NewLogSender(log), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify transport %q", cfg.Notify.Transport)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SMTPSender delivers HTML mail through a relay. Port 465 uses implicit
// TLS; other ports rely on STARTTLS.
type SMTPSender struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, timeout: 10 * time.Second}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	// a stalled relay must not hold the request past the timeout or ctx
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tlsConfig()); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from()); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(s.from(), to, subject, html)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	nd := &net.Dialer{Timeout: s.timeout}
	if s.cfg.Port != 465 {
		return nd.DialContext(ctx, "tcp", addr)
	}
	td := &tls.Dialer{NetDialer: nd, Config: s.tlsConfig()}
	return td.DialContext(ctx, "tcp", addr)
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

func (s *SMTPSender) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.Username
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// MessageWriter is the part of kafka.Writer the sender uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes a command for a downstream mailer. The recipient is
// the message key, which keeps one recipient's mail in order.
type KafkaSender struct {
	writer MessageWriter
}

// Command is the JSON value published per message.
type Command struct {
	Target  string `json:"target"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func NewKafkaSender(writer MessageWriter) *KafkaSender {
	return &KafkaSender{writer: writer}
}

func (s *KafkaSender) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(Command{Target: to, Subject: subject, Content: html})
	if err != nil {
		return fmt.Errorf("failed to marshal notification command: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(to), Value: payload})
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

// LogSender only logs; used in development.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, html string) error {
	s.log.Info("mail", zap.String("to", to), zap.String("subject", subject), zap.Int("body_bytes", len(html)))
	return nil
}
