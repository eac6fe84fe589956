// internal/feed/types.go
package feed

// tickerMsg — входящее WS-сообщение топика tickers.{symbol}.
// Bybit шлёт дельты: отсутствующие поля приходят пустыми строками.
type tickerMsg struct {
	Topic string     `json:"topic"`
	Type  string     `json:"type"`
	Ts    int64      `json:"ts"` // системный timestamp ms
	Data  tickerData `json:"data"`
}

// tickerData — поля тикера (числа приходят строками)
type tickerData struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"` // доля, не процент: 0.05 = +5%
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
}

// klineMsg — входящее WS-сообщение топика kline.{interval}.{symbol}
type klineMsg struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Ts    int64       `json:"ts"`
	Data  []klineData `json:"data"`
}

// klineData — один бар (confirm=true означает закрытый бар)
type klineData struct {
	Start    int64  `json:"start"` // открытие бара, ms
	Interval string `json:"interval"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
}

// orderbookMsg — входящее WS-сообщение топика orderbook.{depth}.{symbol}.
// type: "snapshot" — полный стакан, "delta" — изменения
// (size "0" = уровень удалён).
type orderbookMsg struct {
	Topic string        `json:"topic"`
	Type  string        `json:"type"`
	Ts    int64         `json:"ts"`
	Data  orderbookData `json:"data"`
}

// orderbookData — уровни приходят парами строк [цена, объём]
type orderbookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
}

// wsSubscribeMsg — исходящее сообщение подписки
type wsSubscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// wsPingMsg — heartbeat-пинг
type wsPingMsg struct {
	Op string `json:"op"`
}

// wsResponseMsg — ответ сервера (op: "pong" / "subscribe")
type wsResponseMsg struct {
	Op      string `json:"op"`
	ConnID  string `json:"conn_id,omitempty"`
	Success bool   `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
}
