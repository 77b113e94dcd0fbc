// Package receipt формирует и доставляет квитанции о выплате заработной платы.
package receipt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var bodyTemplate = template.Must(template.ParseFS(templateFS, "templates/receipt.txt.tmpl"))

// ErrNoRecipient возвращается, если у работника не указан адрес электронной почты.
var ErrNoRecipient = errors.New("worker has no email address")

// Receipt описывает квитанцию по сохранённой записи ведомости.
type Receipt struct {
	Record model.PayrollRecord
	Worker model.Worker
}

// Message содержит готовое к отправке сообщение.
type Message struct {
	To      string
	Subject string
	Body    string
}

type attendance struct {
	Present int
	Leave   int
	Total   int
}

type bodyData struct {
	WorkerName      string
	Month           model.Month
	Year            int
	BasicSalary     string
	OTHours         string
	OTAmount        string
	Incentives      string
	EPFEmployee     string
	ETFEmployer     string
	OtherDeductions string
	NetSalary       string
	PaymentMethod   string
	PaidStatus      string
	PaidDate        string
	Attendance      *attendance
}

// Subject возвращает тему сообщения для записи ведомости.
func Subject(rec model.PayrollRecord) string {
	return fmt.Sprintf("Salary Receipt - %s %d", rec.Month, rec.Year)
}

// Render формирует сообщение с квитанцией.
func Render(r Receipt) (Message, error) {
	to := strings.TrimSpace(r.Worker.Email)
	if to == "" {
		return Message{}, fmt.Errorf("%w: worker %d", ErrNoRecipient, r.Worker.ID)
	}

	rec := r.Record
	name := r.Worker.FullName
	if name == "" {
		name = rec.WorkerName
	}

	data := bodyData{
		WorkerName:      name,
		Month:           rec.Month,
		Year:            rec.Year,
		BasicSalary:     FormatAmount(rec.BasicSalary),
		OTHours:         rec.OTHours.String(),
		OTAmount:        FormatAmount(rec.OTAmount),
		Incentives:      FormatAmount(rec.Incentives),
		EPFEmployee:     FormatAmount(rec.EPFEmployee),
		ETFEmployer:     FormatAmount(rec.ETFEmployer),
		OtherDeductions: FormatAmount(rec.OtherDeductions),
		NetSalary:       FormatAmount(rec.NetSalary),
		PaymentMethod:   humanize(string(rec.PaymentMethod)),
		PaidStatus:      humanize(string(rec.PaidStatus)),
	}
	if rec.PaidDate != nil {
		data.PaidDate = rec.PaidDate.Format("January 02, 2006")
	}
	if rec.PresentDays != nil && rec.LeaveDays != nil {
		data.Attendance = &attendance{
			Present: *rec.PresentDays,
			Leave:   *rec.LeaveDays,
			Total:   *rec.PresentDays + *rec.LeaveDays,
		}
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("execute receipt template: %w", err)
	}

	return Message{To: to, Subject: Subject(rec), Body: body.String()}, nil
}

// FormatAmount форматирует сумму с двумя знаками и разделителями тысяч: 43429.16 -> "43,429.16".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	return sign + b.String() + "." + frac
}

func humanize(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
