// Package mailer sends buyer-facing emails through MailerSend.
package mailer

import (
    "context"
    "fmt"
    "time"

    "github.com/mailersend/mailersend-go"
)

// Mailer sends order confirmation emails.  Delivery is best effort;
// callers treat failures as log-worthy, never as checkout failures.
type Mailer struct {
    client     *mailersend.Mailersend
    fromName   string
    fromEmail  string
    templateID string
}

// New constructs a Mailer.  An empty apiKey returns nil, which callers
// interpret as notifications disabled.
func New(apiKey, fromName, fromEmail, templateID string) *Mailer {
    if apiKey == "" {
        return nil
    }
    return &Mailer{
        client:     mailersend.NewMailersend(apiKey),
        fromName:   fromName,
        fromEmail:  fromEmail,
        templateID: templateID,
    }
}

// SendOrderConfirmation emails the buyer their order number and ticket
// IDs using the configured template.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, to, orderNumber string, ticketIDs []string) error {
    sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()

    from := mailersend.From{
        Name:  m.fromName,
        Email: m.fromEmail,
    }

    recipients := []mailersend.Recipient{
        {
            Email: to,
        },
    }

    personalization := []mailersend.Personalization{
        {
            Email: to,
            Data: map[string]interface{}{
                "order_number": orderNumber,
                "ticket_ids":   ticketIDs,
            },
        },
    }

    message := m.client.Email.NewMessage()
    message.SetFrom(from)
    message.SetRecipients(recipients)
    message.SetSubject("Your tickets")
    message.SetTemplateID(m.templateID)
    message.SetPersonalization(personalization)

    if _, err := m.client.Email.Send(sctx, message); err != nil {
        return fmt.Errorf("failed to send email: %w", err)
    }
    return nil
}
