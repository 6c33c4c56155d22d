package messaging

import "time"

// StockMovedEvent is the wire form of one recorded stock movement.
type StockMovedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Movement    string    `json:"movement"`
	Quantity    int       `json:"quantity"`
	RecordedAt  time.Time `json:"recorded_at"`
	PublishedAt time.Time `json:"published_at"`
}

const EventTypeStockMoved = "stock.moved"

const DefaultTopic = "stock-movements"
