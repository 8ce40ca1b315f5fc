package events

// Topic constants for domain events emitted by the platform.
const (
	TopicBudgetSaved       = "budget.saved"
	TopicBudgetQuoted      = "budget.quoted"
	TopicBudgetApproved    = "budget.approved"
	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutFailed    = "checkout.failed"
)

// DefaultTopics returns the canonical list of topics that support
// webhook notifications.
func DefaultTopics() []string {
	return []string{
		TopicBudgetSaved,
		TopicBudgetQuoted,
		TopicBudgetApproved,
		TopicCheckoutCompleted,
		TopicCheckoutFailed,
	}
}
