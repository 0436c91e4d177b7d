package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jmiconnect/portal/internal/config"
	"github.com/sirupsen/logrus"
)

const otpSubject = "JMIConnect - Password Reset OTP"

var (
	// ErrNotConfigured is returned when no sender credentials are set.
	ErrNotConfigured = errors.New("email service not configured")
	// ErrAuthentication is returned when the SMTP server rejects the credentials.
	ErrAuthentication = errors.New("smtp authentication failed")
	// ErrDelivery wraps any other SMTP failure.
	ErrDelivery = errors.New("smtp delivery failed")
)

// OTPMessage is a password-reset passcode addressed to one account.
type OTPMessage struct {
	To           string
	AccountLabel string
	Code         string
	ValidFor     time.Duration
}

var otpHTML = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0;">
  <div style="max-width: 600px; margin: 40px auto; background: white; border-radius: 12px; overflow: hidden;">
    <div style="background: #065f46; color: white; padding: 30px; text-align: center;">
      <h1 style="margin: 0; font-size: 28px;">Password Reset Request</h1>
    </div>
    <div style="padding: 40px 30px;">
      <p style="font-size: 16px; color: #1f2937;">Hello <strong>{{.AccountLabel}}</strong>,</p>
      <p style="color: #6b7280;">We received a request to reset your password for your JMIConnect account. Use the OTP below to proceed:</p>
      <div style="background: #f1f5f9; border-left: 4px solid #10b981; padding: 20px; margin: 25px 0; border-radius: 8px;">
        <p style="margin: 0; color: #475569; font-size: 14px; text-align: center;">Your One-Time Password</p>
        <div style="font-size: 36px; font-weight: 800; color: #065f46; letter-spacing: 8px; text-align: center; margin: 10px 0;">{{.Code}}</div>
        <p style="margin: 0; color: #64748b; font-size: 12px; text-align: center;">Valid for {{.ValidFor}}</p>
      </div>
      <div style="background: #fef2f2; border-left: 4px solid #ef4444; padding: 15px; margin: 20px 0; border-radius: 8px; color: #991b1b; font-size: 14px;">
        <strong>Security Notice:</strong><br>
        &bull; Never share this OTP with anyone<br>
        &bull; JMIConnect will never ask for your password via email<br>
        &bull; If you didn't request this, please ignore this email
      </div>
      <p style="color: #6b7280; font-size: 14px;">This OTP will expire in <strong>{{.ValidFor}}</strong> and can only be used once.</p>
    </div>
    <div style="background: #f8fafc; padding: 20px; text-align: center; color: #64748b; font-size: 13px;">
      <p style="margin: 0;">&copy; {{.Year}} JMIConnect | Jamia Millia Islamia</p>
      <p style="margin: 5px 0 0 0;">This is an automated email. Please do not reply.</p>
    </div>
  </div>
</body>
</html>
`))

// SMTPMailer sends OTP emails through an SMTP relay. Port 465 uses implicit
// TLS; any other port upgrades with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	logger  *logrus.Logger
	now     func() time.Time
	tlsConf *tls.Config
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		tlsConf: &tls.Config{ServerName: cfg.Host},
	}
}

// SendOTP delivers msg synchronously. Failures are logged with the transport
// detail and returned wrapped in one of the package errors.
func (m *SMTPMailer) SendOTP(ctx context.Context, msg OTPMessage) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		m.logger.Error("Email credentials not found in environment variables")
		return ErrNotConfigured
	}

	body, err := m.buildOTPMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if err := m.send(ctx, msg.To, body); err != nil {
		m.logger.WithError(err).WithField("recipient", msg.To).Error("Failed to send OTP email")
		return err
	}

	m.logger.WithField("recipient", msg.To).Info("OTP email sent")
	return nil
}

func (m *SMTPMailer) buildOTPMessage(msg OTPMessage) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", m.cfg.SenderName, m.cfg.Username)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", otpSubject)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	validFor := validityText(msg.ValidFor)
	text := fmt.Sprintf("Your OTP for password reset is: %s\r\n\r\nThis OTP is valid for %s and can only be used once.\r\n", msg.Code, validFor)
	if err := writeQuotedPart(mw, "text/plain", []byte(text)); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	err := otpHTML.Execute(&html, struct {
		AccountLabel string
		Code         string
		ValidFor     string
		Year         int
	}{msg.AccountLabel, msg.Code, validFor, m.now().Year()})
	if err != nil {
		return nil, fmt.Errorf("render otp email: %w", err)
	}
	if err := writeQuotedPart(mw, "text/html", html.Bytes()); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// validityText renders d in whole minutes, rounded up so a code never looks
// shorter lived than it is.
func validityText(d time.Duration) string {
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func writeQuotedPart(mw *multipart.Writer, contentType string, body []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType+"; charset=\"utf-8\"")
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write(body); err != nil {
		return err
	}
	return qp.Close()
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	netDialer := &net.Dialer{Timeout: m.cfg.DialTimeout}

	if m.cfg.Port == 465 {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: m.tlsConf}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	return netDialer.DialContext(ctx, "tcp", addr)
}

func (m *SMTPMailer) send(ctx context.Context, to string, body []byte) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrDelivery, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && m.cfg.Port != 465 {
		if err := client.StartTLS(m.tlsConf); err != nil {
			return fmt.Errorf("%w: starttls: %v", ErrDelivery, err)
		}
	}

	if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if err := client.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("%w: mail from: %v", ErrDelivery, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%w: rcpt to: %v", ErrDelivery, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrDelivery, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: write: %v", ErrDelivery, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if err := client.Quit(); err != nil {
		m.logger.WithError(err).Debug("SMTP QUIT failed after message was accepted")
	}
	return nil
}
