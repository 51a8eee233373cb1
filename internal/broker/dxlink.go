package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
)

// QuoteTokenSource supplies DXLink credentials.
type QuoteTokenSource interface {
	QuoteToken(ctx context.Context) (token, wsURL string, err error)
}

const (
	dxlinkVersion   = "0.1-DXF-JS/0.3.0"
	feedChannel     = 1
	keepaliveSecs   = 60
	handshakeBudget = 10 * time.Second
)

// eventFields is the COMPACT field layout requested per event type.
var eventFields = map[marketdata.EventKind][]string{
	marketdata.KindQuote:   {"eventType", "eventSymbol", "bidPrice", "askPrice"},
	marketdata.KindGreeks:  {"eventType", "eventSymbol", "delta"},
	marketdata.KindSummary: {"eventType", "eventSymbol", "dayOpenPrice", "dayClosePrice", "prevDayClosePrice"},
}

// DXLinkStreamer streams dxFeed events over the DXLink websocket protocol.
// Every Subscribe opens its own connection, closed when ctx is done.
type DXLinkStreamer struct {
	tokens    QuoteTokenSource
	dialer    *websocket.Dialer
	log       *logrus.Logger
	keepalive time.Duration
}

// NewDXLinkStreamer creates a streamer authenticating with tokens.
func NewDXLinkStreamer(tokens QuoteTokenSource, log *logrus.Logger) *DXLinkStreamer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DXLinkStreamer{
		tokens:    tokens,
		dialer:    websocket.DefaultDialer,
		log:       log,
		keepalive: 30 * time.Second,
	}
}

type dxMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`

	Version                string `json:"version,omitempty"`
	KeepaliveTimeout       int    `json:"keepaliveTimeout,omitempty"`
	AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout,omitempty"`

	Token string `json:"token,omitempty"`

	Service    string         `json:"service,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	AcceptAggregationPeriod float64             `json:"acceptAggregationPeriod,omitempty"`
	AcceptDataFormat        string              `json:"acceptDataFormat,omitempty"`
	AcceptEventFields       map[string][]string `json:"acceptEventFields,omitempty"`

	Reset bool            `json:"reset,omitempty"`
	Add   []subscribeItem `json:"add,omitempty"`
}

type subscribeItem struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe connects, authorizes and subscribes to kind for symbols.
func (d *DXLinkStreamer) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	fields, ok := eventFields[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported event kind %q", kind)
	}
	token, wsURL, err := d.tokens.QuoteToken(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, err := d.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dxlink: dial %s: %w", wsURL, err)
	}
	if err := d.handshake(conn, token); err != nil {
		_ = conn.Close()
		return nil, err
	}

	items := make([]subscribeItem, 0, len(symbols))
	for _, s := range symbols {
		items = append(items, subscribeItem{Type: string(kind), Symbol: s})
	}
	setup := []dxMessage{
		{
			Type:                    "FEED_SETUP",
			Channel:                 feedChannel,
			AcceptAggregationPeriod: 0.1,
			AcceptDataFormat:        "COMPACT",
			AcceptEventFields:       map[string][]string{string(kind): fields},
		},
		{Type: "FEED_SUBSCRIPTION", Channel: feedChannel, Reset: true, Add: items},
	}
	for _, m := range setup {
		if err := conn.WriteJSON(m); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("dxlink: %s: %w", m.Type, err)
		}
	}
	d.log.WithFields(logrus.Fields{"kind": kind, "symbols": len(symbols)}).Debug("DXLink subscription opened")

	out := make(chan marketdata.Event, 256)
	layout := map[string][]string{string(kind): fields}
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(d.keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Only this goroutine writes once the subscription is set up.
				if err := conn.WriteJSON(dxMessage{Type: "KEEPALIVE", Channel: 0}); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					d.log.WithError(err).Warn("DXLink stream ended")
				}
				return
			}
			switch gjson.GetBytes(msg, "type").String() {
			case "FEED_CONFIG":
				mergeEventFields(layout, msg)
			case "FEED_DATA":
				for _, ev := range ParseCompactFeed(msg, layout) {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			case "ERROR":
				d.log.WithField("message", gjson.GetBytes(msg, "message").String()).Warn("DXLink error")
			}
		}
	}()

	return out, nil
}

// handshake performs SETUP, AUTH and CHANNEL_REQUEST and waits for the feed
// channel to open.
func (d *DXLinkStreamer) handshake(conn *websocket.Conn, token string) error {
	msgs := []dxMessage{
		{Type: "SETUP", Channel: 0, Version: dxlinkVersion, KeepaliveTimeout: keepaliveSecs, AcceptKeepaliveTimeout: keepaliveSecs},
		{Type: "AUTH", Channel: 0, Token: token},
		{Type: "CHANNEL_REQUEST", Channel: feedChannel, Service: "FEED", Parameters: map[string]any{"contract": "AUTO"}},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			return fmt.Errorf("dxlink: %s: %w", m.Type, err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeBudget)); err != nil {
		return err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("dxlink: handshake: %w", err)
		}
		switch gjson.GetBytes(msg, "type").String() {
		case "CHANNEL_OPENED":
			if gjson.GetBytes(msg, "channel").Int() == feedChannel {
				return nil
			}
		case "ERROR":
			return fmt.Errorf("dxlink: handshake rejected: %s: %s",
				gjson.GetBytes(msg, "error").String(), gjson.GetBytes(msg, "message").String())
		}
	}
}

// mergeEventFields applies the server's confirmed field layout.
func mergeEventFields(layout map[string][]string, msg []byte) {
	gjson.GetBytes(msg, "eventFields").ForEach(func(k, v gjson.Result) bool {
		var fields []string
		v.ForEach(func(_, f gjson.Result) bool {
			fields = append(fields, f.String())
			return true
		})
		if len(fields) > 0 {
			layout[k.String()] = fields
		}
		return true
	})
}

// ParseCompactFeed decodes a COMPACT FEED_DATA message. data alternates an
// event type name with a flat array of values laid out per layout; a flat
// array may hold several events back to back.
func ParseCompactFeed(msg []byte, layout map[string][]string) []marketdata.Event {
	data := gjson.GetBytes(msg, "data").Array()
	var events []marketdata.Event
	for i := 0; i+1 < len(data); i += 2 {
		typ := data[i].String()
		fields := layout[typ]
		values := data[i+1].Array()
		if len(fields) == 0 {
			continue
		}
		for start := 0; start+len(fields) <= len(values); start += len(fields) {
			rec := make(map[string]gjson.Result, len(fields))
			for j, f := range fields {
				rec[f] = values[start+j]
			}
			ev := marketdata.Event{
				Kind:   marketdata.EventKind(typ),
				Symbol: rec["eventSymbol"].String(),
				Time:   time.Now(),
			}
			switch ev.Kind {
			case marketdata.KindQuote:
				ev.Bid = feedFloat(rec["bidPrice"])
				ev.Ask = feedFloat(rec["askPrice"])
			case marketdata.KindGreeks:
				ev.Delta = feedFloat(rec["delta"])
			case marketdata.KindSummary:
				ev.DayOpen = feedFloat(rec["dayOpenPrice"])
				ev.DayClose = feedFloat(rec["dayClosePrice"])
				ev.PrevClose = feedFloat(rec["prevDayClosePrice"])
			default:
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}

// feedFloat reads a numeric field; dxFeed sends "NaN" and "Infinity" as strings.
func feedFloat(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Float()
	default:
		return 0
	}
}
