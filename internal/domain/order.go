package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// OrderKind selects the execution policy.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
	OrderKindStop   OrderKind = "stop"
)

// ContractKind selects the payoff shape an order trades. Contracts are
// tagged variants; each resolves to a per-bucket weight vector against the
// current grid rather than being modelled as a type hierarchy.
type ContractKind string

const (
	// ContractBucket bets on the single bucket containing the target value.
	ContractBucket ContractKind = "bucket"
	// ContractAbove pays out when the outcome lands at or above the target,
	// with linear apportionment for the straddled bucket.
	ContractAbove ContractKind = "above"
	// ContractBelow pays out when the outcome lands below the target.
	ContractBelow ContractKind = "below"
)

// OrderStatus tracks the order lifecycle. Filled, PartiallyFilled, Rejected
// and Cancelled are terminal; no resting remainder is tracked.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

// Order is a request to trade a contract against one market's AMM.
type Order struct {
	ID          string       `json:"id"`
	MarketID    string       `json:"market_id"`
	User        string       `json:"user"`
	Kind        OrderKind    `json:"kind"`
	Side        OrderSide    `json:"side"`
	Contract    ContractKind `json:"contract"`
	TargetValue float64      `json:"target_value"` // point on the outcome axis
	Size        float64      `json:"size"`         // shares requested
	LimitPrice  float64      `json:"limit_price,omitempty"` // per-unit reference, limit orders
	StopPrice   float64      `json:"stop_price,omitempty"`  // trigger, stop orders
	Status      OrderStatus  `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// OrderResult reports the terminal outcome of a submission.
type OrderResult struct {
	OrderID       string       `json:"order_id"`
	Status        OrderStatus  `json:"status"`
	RequestedSize float64      `json:"requested_size"`
	FilledSize    float64      `json:"filled_size"`
	Payment       float64      `json:"payment"`
	AvgPrice      float64      `json:"avg_price"`
	Reason        RejectReason `json:"reason,omitempty"`
}
