package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-clinica/internal/common"
	"github.com/noah-isme/backend-clinica/internal/events"
)

// EmailNotifier sends transactional emails for selected topics. It
// implements events.Notifier.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	From         string
	TopicToggles map[string]bool
}

func (n EmailNotifier) Notify(_ context.Context, event events.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

func extractRecipient(payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "patientEmail"} {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicBudgetSaved:
		return "Orçamento atualizado"
	case events.TopicBudgetApproved:
		return "Orçamento aprovado"
	case events.TopicCheckoutCompleted:
		return "Pagamento confirmado"
	case events.TopicCheckoutFailed:
		return "Falha no pagamento"
	default:
		return fmt.Sprintf("Notificação %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Evento %s registrado em %s.", topic, occurred.Format(time.RFC3339))
	if budgetID, ok := payload["budgetId"].(string); ok && budgetID != "" {
		summary += fmt.Sprintf("\nOrçamento: %s", budgetID)
	}
	if saleID, ok := payload["saleId"].(string); ok && saleID != "" {
		summary += fmt.Sprintf("\nVenda: %s", saleID)
	}
	return summary
}
