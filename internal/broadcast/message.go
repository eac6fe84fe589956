// internal/broadcast/message.go
package broadcast

import "time"

// Message - сообщение, доставляемое потребителю.
// Channel == "" означает широковещательную доставку всем.
type Message struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Channel   string      `json:"channel,omitempty"`
	Timestamp int64       `json:"timestamp"` // epoch millis
}

// ConsumerState - состояние соединения потребителя
type ConsumerState string

const (
	StateConnecting ConsumerState = "connecting"
	StateOpen       ConsumerState = "open"
	StateSubscribed ConsumerState = "subscribed"
	StateClosed     ConsumerState = "closed"
)

// Sink - транспорт потребителя. Реализуется сессионным слоем
// (например, websocket-сессией); для хаба это просто приемник.
// Ошибка Send означает мертвого потребителя.
//
// Send обязан возвращаться за ограниченное время (дедлайн записи
// на своей стороне): вечно висящий Send не даст Shutdown дождаться
// завершения цикла доставки.
type Sink interface {
	Send(msg Message) error
}

func epochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
