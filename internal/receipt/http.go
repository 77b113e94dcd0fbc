package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// idempotencyNamespace задаёт пространство имён для ключей идемпотентности квитанций.
var idempotencyNamespace = uuid.MustParse("6f1c2a4e-8d3b-4b7e-9a51-2c0f5e7d9b13")

// HTTPSender отправляет квитанции во внешний сервис уведомлений.
type HTTPSender struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type receiptPayload struct {
	PayrollID int64  `json:"payroll_id"`
	WorkerID  int64  `json:"worker_id"`
	Month     string `json:"month"`
	Year      int    `json:"year"`
	NetSalary string `json:"net_salary"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// NewHTTPSender создаёт клиент сервиса уведомлений по указанному адресу.
func NewHTTPSender(baseURL string, logger *zap.Logger) *HTTPSender {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = leveledLogger{logger.Sugar()}
	}

	return &HTTPSender{baseURL: base, httpClient: client}
}

// IdempotencyKey возвращает ключ, одинаковый для всех попыток доставки квитанции по одной записи.
func IdempotencyKey(payrollID int64) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("payroll:%d", payrollID))).String()
}

// SendReceipt отправляет квитанцию. Повторы при сетевых ошибках и ответах 5xx/429
// выполняет клиент; сервис получает один и тот же Idempotency-Key.
func (s *HTTPSender) SendReceipt(ctx context.Context, r Receipt) error {
	if s == nil || s.baseURL == "" {
		return fmt.Errorf("receipt service not configured")
	}

	msg, err := Render(r)
	if err != nil {
		return err
	}

	payload := receiptPayload{
		PayrollID: r.Record.ID,
		WorkerID:  r.Record.WorkerID,
		Month:     string(r.Record.Month),
		Year:      r.Record.Year,
		NetSalary: r.Record.NetSalary.StringFixed(2),
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/receipts", body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(r.Record.ID))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		// Квитанция с этим ключом уже принята.
		return nil
	}

	return fmt.Errorf("unexpected status: %d", resp.StatusCode)
}

type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, keysAndValues ...interface{}) { z.l.Errorw(msg, keysAndValues...) }
func (z leveledLogger) Info(msg string, keysAndValues ...interface{}) { z.l.Infow(msg, keysAndValues...) }
func (z leveledLogger) Debug(msg string, keysAndValues ...interface{}) { z.l.Debugw(msg, keysAndValues...) }
func (z leveledLogger) Warn(msg string, keysAndValues ...interface{}) { z.l.Warnw(msg, keysAndValues...) }
