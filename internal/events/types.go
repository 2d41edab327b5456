package events

// Event enumerates high-level topics published by the trading core.
type Event string

const (
	// EventOrderOpened fires after a successful Open.
	EventOrderOpened Event = "order.opened"
	// EventOrderClosed fires after a successful explicit Close.
	EventOrderClosed Event = "order.closed"
	// EventPositionLiquidated fires after the risk engine force-closes a position.
	EventPositionLiquidated Event = "position.liquidated"
)

// OrderOpened is the payload published on EventOrderOpened.
type OrderOpened struct {
	UserID     string
	PositionID string
}

// OrderClosed is the payload published on EventOrderClosed.
type OrderClosed struct {
	UserID     string
	PositionID string
}

// PositionLiquidated is the payload published on EventPositionLiquidated.
type PositionLiquidated struct {
	UserID     string
	PositionID string
}
