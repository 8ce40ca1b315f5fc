package catalog

// Procedure is one entry of the clinic's treatment catalog. Base price and
// estimated cost are stored in centavos; EstimatedCost may be zero when the
// clinic has not measured it, in which case the budget composer falls back
// to a heuristic.
type Procedure struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	BasePrice     int64  `json:"basePrice"`
	EstimatedCost int64  `json:"estimatedCost"`
	Active        bool   `json:"active"`
}

// PriceTable groups procedure pricing for a negotiation context (private,
// insurance plan, partner agreement).
type PriceTable struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Professional is a clinic staff member who can own a budget.
type Professional struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}
