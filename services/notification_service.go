package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/Dosada05/result-integrity/config"
)

// События уведомлений, отправляемых пайплайном.
const (
	NotifyResultSubmitted = "result_submitted"
	NotifyResultApproved  = "result_approved"
	NotifyResultRejected  = "result_rejected"
	NotifyInfoRequested   = "result_info_requested"
	NotifyIntegrityAlert  = "integrity_alert"
	NotifyDisputeOpened   = "result_disputed"
)

// Notifier — внешний коллаборатор пайплайна. Вызов fire-and-forget:
// повторные попытки с нарастающей паузой — забота самого нотификатора,
// координатор их не ждёт.
type Notifier interface {
	Notify(event string, recipients []string, payload map[string]any)
}

type emailNotifier struct {
	cfg    *config.Config
	logger *slog.Logger

	maxAttempts int
	baseBackoff time.Duration
}

func NewEmailNotifier(cfg *config.Config, logger *slog.Logger) Notifier {
	return &emailNotifier{
		cfg:         cfg,
		logger:      logger,
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
	}
}

var eventTemplates = map[string]string{
	NotifyResultSubmitted: "templates/emails/result_submitted_email.html",
	NotifyResultApproved:  "templates/emails/result_approved_email.html",
	NotifyResultRejected:  "templates/emails/result_rejected_email.html",
	NotifyInfoRequested:   "templates/emails/result_info_requested_email.html",
	NotifyIntegrityAlert:  "templates/emails/integrity_alert_email.html",
	NotifyDisputeOpened:   "templates/emails/result_disputed_email.html",
}

var eventSubjects = map[string]string{
	NotifyResultSubmitted: "Результат матча отправлен на проверку",
	NotifyResultApproved:  "Результат матча утверждён",
	NotifyResultRejected:  "Результат матча отклонён",
	NotifyInfoRequested:   "По результату матча запрошена дополнительная информация",
	NotifyIntegrityAlert:  "ВНИМАНИЕ: нарушение целостности результата",
	NotifyDisputeOpened:   "Результат матча оспорен",
}

func (n *emailNotifier) Notify(event string, recipients []string, payload map[string]any) {
	if len(recipients) == 0 || n.cfg.SMTPHost == "" {
		return
	}

	templatePath, ok := eventTemplates[event]
	if !ok {
		n.logger.Warn("no email template for event", slog.String("event", event))
		return
	}

	go n.deliver(event, templatePath, recipients, payload)
}

func (n *emailNotifier) deliver(event, templatePath string, recipients []string, payload map[string]any) {
	body, err := n.generateBody(templatePath, payload)
	if err != nil {
		n.logger.Error("ошибка генерации тела письма",
			slog.String("event", event), slog.Any("error", err))
		return
	}
	subject := eventSubjects[event]

	backoff := n.baseBackoff
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		err = n.sendEmail(recipients, subject, body)
		if err == nil {
			n.logger.Info("notification delivered",
				slog.String("event", event), slog.Int("recipients", len(recipients)))
			return
		}
		n.logger.Warn("notification delivery failed",
			slog.String("event", event),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if attempt < n.maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	n.logger.Error("notification delivery abandoned",
		slog.String("event", event), slog.Any("error", err))
}

func (n *emailNotifier) generateBody(templatePath string, data any) (string, error) {
	t, err := template.ParseFiles(templatePath)
	if err != nil {
		return "", fmt.Errorf("ошибка парсинга шаблона %s: %w", templatePath, err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", fmt.Errorf("ошибка выполнения шаблона %s: %w", templatePath, err)
	}
	return body.String(), nil
}

// composeMessage собирает письмо. Заголовок To перечисляет всех адресатов,
// а не только первого: список должен совпадать с фактическими получателями.
func composeMessage(from string, to []string, subject, body string) []byte {
	return []byte("To: " + strings.Join(to, ", ") + "\r\n" +
		"From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")
}

func (n *emailNotifier) sendEmail(to []string, subject string, body string) error {
	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)

	msg := composeMessage(n.cfg.SMTPFrom, to, subject, body)

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	tlsconfig := &tls.Config{
		ServerName: n.cfg.SMTPHost,
	}

	var client *smtp.Client
	if n.cfg.SMTPPort == 465 {
		// Прямое TLS-соединение
		conn, err := tls.Dial("tcp", addr, tlsconfig)
		if err != nil {
			return fmt.Errorf("ошибка TLS соединения: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, n.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("ошибка создания SMTP клиента: %w", err)
		}
	} else {
		// STARTTLS (обычно порт 587)
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("ошибка соединения SMTP: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsconfig); err != nil {
			client.Close()
			return fmt.Errorf("ошибка команды STARTTLS: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("ошибка аутентификации SMTP: %w", err)
	}

	if err := client.Mail(n.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("ошибка MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("ошибка RCPT TO: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("ошибка команды DATA: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("ошибка записи сообщения: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия DATA: %w", err)
	}

	return nil
}
