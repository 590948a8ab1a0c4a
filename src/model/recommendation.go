package model

// RecommendationTarget is who or where a remediation points at, with the load figures used to pick it.
type RecommendationTarget struct {
	Kind string `json:"kind"` // worker | location

	UserID            uint    `json:"user_id,omitempty"`
	Name              string  `json:"name,omitempty"`
	OpenReceivings    int     `json:"open_receivings,omitempty"`
	OpenShipments     int     `json:"open_shipments,omitempty"`
	Score             float64 `json:"score,omitempty"`
	LocationID        uint    `json:"location_id,omitempty"`
	LocationCode      string  `json:"location_code,omitempty"`
	Zone              string  `json:"zone,omitempty"`
	FillRatio         float64 `json:"fill_ratio,omitempty"`
	AvailableCapacity int     `json:"available_capacity,omitempty"`
}

// CallToAction describes the HTTP call that executes a recommendation.
type CallToAction struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body"`
}

type SlaState struct {
	AgeMinutes      int `json:"age_minutes"`
	SlaLimitMinutes int `json:"sla_limit_minutes"`
	BreachInMinutes int `json:"breach_in_minutes"`
}

// Recommendation is the single proposed remediation for one exception.
type Recommendation struct {
	ExceptionID    string               `json:"exception_id"`
	ExceptionType  ExceptionType        `json:"exception_type"`
	Severity       ExceptionSeverity    `json:"severity"`
	ProposedAction string               `json:"proposed_action"`
	Target         RecommendationTarget `json:"target"`
	Explanation    string               `json:"explanation"`
	CTA            CallToAction         `json:"cta"`
	SlaState       SlaState             `json:"sla_state"`
}

// WorkerLoad is one row of the workforce overview.
type WorkerLoad struct {
	UserID             uint   `json:"user_id"`
	Name               string `json:"name"`
	OnlineStatus       string `json:"online_status"`
	OpenTasksCount     int    `json:"open_tasks_count"`
	OpenShippingOrders int    `json:"open_shipping_orders"`
}

const WorkerOnline = "online"

func (w WorkerLoad) Online() bool {
	return w.OnlineStatus == WorkerOnline
}
