package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/http"
	"net/mail"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LogSender writes messages to the log instead of delivering them. It is the
// development transport.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("mail-log")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email",
		zap.String("message_id", msg.ID),
		zap.String("category", string(msg.Category)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// SMTPConfig holds the settings for direct SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool // STARTTLS; port 465 always uses implicit TLS
	From     string
}

// SMTPSender delivers one message per SMTP session.
type SMTPSender struct {
	cfg    SMTPConfig
	from   *mail.Address
	dialer *net.Dialer
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	return &SMTPSender{cfg: cfg, from: from, dialer: &net.Dialer{Timeout: 10 * time.Second}}, nil
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}
	if s.cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if s.cfg.UseTLS && s.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not support STARTTLS")
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	raw, err := buildMIME(s.from, msg, time.Now())
	if err != nil {
		w.Close()
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return c.Quit()
}

// buildMIME renders msg as a single-part quoted-printable HTML email.
func buildMIME(from *mail.Address, msg Message, now time.Time) ([]byte, error) {
	to := mail.Address{Name: msg.ToName, Address: msg.To}
	domain := "localhost"
	if at := strings.LastIndex(from.Address, "@"); at >= 0 {
		domain = from.Address[at+1:]
	}

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", msg.ID, domain))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

const (
	defaultAPITimeout = 15 * time.Second
	maxAPIRetries     = 2
	userAgent         = "puzzlehunt-mailer/1"
)

// HTTPAPIConfig configures delivery through a third-party email HTTP API
// that accepts a JSON message with a bearer key.
type HTTPAPIConfig struct {
	URL           string
	APIKey        string
	From          string
	Timeout       time.Duration
	RatePerSecond float64 // 0 means unlimited
}

type apiPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []apiTag          `json:"tags,omitempty"`
}

type apiTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPAPISender posts messages to an email provider's HTTP API, retrying
// transient failures.
type HTTPAPISender struct {
	httpClient *http.Client
	logger     *zap.Logger
	url        string
	apiKey     string
	from       string
	limiter    *rate.Limiter
	backoff    time.Duration
}

func NewHTTPAPISender(logger *zap.Logger, cfg HTTPAPIConfig) (*HTTPAPISender, error) {
	if cfg.URL == "" {
		return nil, errors.New("mail API URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mail API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("mail API URL must use http or https scheme, got %q", u.Scheme)
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultAPITimeout
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &HTTPAPISender{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("mail-api"),
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		limiter:    rate.NewLimiter(limit, 1),
		backoff:    time.Second,
	}, nil
}

func (s *HTTPAPISender) Name() string { return "http" }

func (s *HTTPAPISender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(apiPayload{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Headers: map[string]string{"X-Entity-Ref-ID": msg.ID},
		Tags:    []apiTag{{Name: "category", Value: string(msg.Category)}},
	})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	var lastErr error
	for attempt := range maxAPIRetries + 1 {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * s.backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		lastErr = s.post(ctx, msg.ID, body)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		s.logger.Debug("mail API transient failure, will retry",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("mail API send failed after %d attempts: %w", maxAPIRetries+1, lastErr)
}

func (s *HTTPAPISender) post(ctx context.Context, id string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Idempotency-Key", id)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &sendError{err: err, retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &sendError{
		err:       fmt.Errorf("mail API returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
}

type sendError struct {
	err       error
	retryable bool
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var se *sendError
	if errors.As(err, &se) {
		return se.retryable
	}
	return true
}
