// internal/pkg/email/service.go
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"

	"github.com/your-org/commerce-core/internal/config"
	"github.com/your-org/commerce-core/internal/domain/order"
)

// EmailService sends transactional email. The "smtp" provider delivers for
// real; "log" writes the message to the logger, which is what development
// and tests run with.
type EmailService struct {
	config *config.Config
	logger *logrus.Logger
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.Config, logger *logrus.Logger) *EmailService {
	return &EmailService{
		config: cfg,
		logger: logger,
	}
}

// Send dispatches an email through the configured provider.
func (s *EmailService) Send(email *Email) error {
	switch s.config.External.Email.Provider {
	case "smtp":
		return s.sendSMTPEmail(email)
	case "log", "":
		s.logger.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
			"type":    email.Type,
		}).Info("Email (log provider)")
		return nil
	default:
		return fmt.Errorf("unknown email provider: %s", s.config.External.Email.Provider)
	}
}

// SendOrderConfirmation emails the buyer after a successful checkout.
func (s *EmailService) SendOrderConfirmation(o *order.Order, userName string) error {
	data := OrderConfirmationData{
		EmailTemplateData: GetBaseTemplateData(s.config.App.Name, s.config.App.BaseURL, userName, o.Email),
		OrderNumber:       o.OrderNumber,
		OrderDate:         o.CreatedAt.Format("January 2, 2006"),
		OrderTotal:        formatMoney(o.TotalAmount),
		Currency:          o.Currency,
		PaymentMethod:     o.PaymentMethod,
	}
	for _, item := range o.Items {
		data.Items = append(data.Items, OrderItem{
			Name:     item.Name,
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    formatMoney(item.Price),
			Total:    formatMoney(item.TotalPrice),
		})
	}

	html, err := renderTemplate(orderConfirmationTemplate, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{
		To:          []string{o.Email},
		Subject:     fmt.Sprintf("Order %s confirmed", o.OrderNumber),
		HTMLContent: html,
		Type:        EmailTypeOrderConfirmation,
	})
}

// SendOrderStatusUpdate emails the buyer when an order changes status.
func (s *EmailService) SendOrderStatusUpdate(o *order.Order, userName, message string) error {
	data := OrderStatusUpdateData{
		EmailTemplateData: GetBaseTemplateData(s.config.App.Name, s.config.App.BaseURL, userName, o.Email),
		OrderNumber:       o.OrderNumber,
		Status:            string(o.Status),
		StatusMessage:     message,
		TrackingNumber:    o.TrackingNumber,
	}

	html, err := renderTemplate(orderStatusTemplate, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{
		To:          []string{o.Email},
		Subject:     fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.Status),
		HTMLContent: html,
		Type:        EmailTypeOrderStatusUpdate,
	})
}

// SendPaymentFailed emails the buyer after a failed payment attempt.
func (s *EmailService) SendPaymentFailed(o *order.Order, userName, reason string, amount int64) error {
	data := PaymentFailedData{
		EmailTemplateData: GetBaseTemplateData(s.config.App.Name, s.config.App.BaseURL, userName, o.Email),
		OrderNumber:       o.OrderNumber,
		Amount:            formatMoney(amount),
		Reason:            reason,
	}

	html, err := renderTemplate(paymentFailedTemplate, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{
		To:          []string{o.Email},
		Subject:     fmt.Sprintf("Payment for order %s failed", o.OrderNumber),
		HTMLContent: html,
		Type:        EmailTypePaymentFailed,
	})
}

func renderTemplate(text string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

func formatMoney(amount int64) string {
	return fmt.Sprintf("%.2f", float64(amount)/100)
}

const orderConfirmationTemplate = `
<html><body>
<h2>Thanks for your order, {{.UserName}}!</h2>
<p>Order <strong>{{.OrderNumber}}</strong> was placed on {{.OrderDate}}.</p>
<table border="0" cellpadding="4">
  <tr><th align="left">Item</th><th align="left">SKU</th><th>Qty</th><th>Price</th><th>Total</th></tr>
  {{range .Items}}
  <tr><td>{{.Name}}</td><td>{{.SKU}}</td><td align="center">{{.Quantity}}</td><td align="right">{{.Price}}</td><td align="right">{{.Total}}</td></tr>
  {{end}}
</table>
<p>Total: <strong>{{.OrderTotal}} {{.Currency}}</strong> ({{.PaymentMethod}})</p>
<p>{{.SiteName}}</p>
</body></html>
`

const orderStatusTemplate = `
<html><body>
<h2>Order {{.OrderNumber}} update</h2>
<p>Hi {{.UserName}}, your order is now <strong>{{.Status}}</strong>.</p>
{{if .StatusMessage}}<p>{{.StatusMessage}}</p>{{end}}
{{if .TrackingNumber}}<p>Tracking number: {{.TrackingNumber}}</p>{{end}}
<p>{{.SiteName}}</p>
</body></html>
`

const paymentFailedTemplate = `
<html><body>
<h2>Payment failed for order {{.OrderNumber}}</h2>
<p>Hi {{.UserName}}, we could not process your payment of {{.Amount}}.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>You can retry payment from your orders page.</p>
<p>{{.SiteName}}</p>
</body></html>
`
