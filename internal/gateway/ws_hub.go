package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/execution"
)

// TickSource streams ticks for one symbol until ctx is done.
type TickSource interface {
	Subscribe(ctx context.Context, symbol string) <-chan domain.PriceTick
}

type subscription struct {
	client *Client
	symbol string
}

type outbound struct {
	symbol string
	userID uuid.UUID
	data   []byte
}

type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub owns all client and subscription state; only Run touches it.
type Hub struct {
	clients     map[*Client]bool
	subs        map[string]map[*Client]bool
	users       map[uuid.UUID]map[*Client]bool
	pumpCancels map[string]context.CancelFunc

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan outbound

	ticks  TickSource
	logger *slog.Logger
}

func NewHub(ticks TickSource, logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		subs:        make(map[string]map[*Client]bool),
		users:       make(map[uuid.UUID]map[*Client]bool),
		pumpCancels: make(map[string]context.CancelFunc),
		// Unbuffered: a client is registered before its pumps start.
		register:    make(chan *Client),
		unregister:  make(chan *Client, 64),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		broadcast:   make(chan outbound, 256),
		ticks:       ticks,
		logger:      logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			if client.userID != uuid.Nil {
				if h.users[client.userID] == nil {
					h.users[client.userID] = make(map[*Client]bool)
				}
				h.users[client.userID][client] = true
			}
		case client := <-h.unregister:
			h.remove(client)
		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			if _, ok := h.subs[sub.symbol]; !ok {
				h.subs[sub.symbol] = make(map[*Client]bool)
				pumpCtx, cancel := context.WithCancel(ctx)
				h.pumpCancels[sub.symbol] = cancel
				go h.pumpTicks(pumpCtx, sub.symbol)
			}
			h.subs[sub.symbol][sub.client] = true
		case sub := <-h.unsubscribe:
			h.drop(sub.client, sub.symbol)
		case msg := <-h.broadcast:
			if msg.symbol != "" {
				h.fanOut(h.subs[msg.symbol], msg.data)
			} else {
				h.fanOut(h.users[msg.userID], msg.data)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for sym := range h.subs {
		h.drop(client, sym)
	}
	if conns, ok := h.users[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.userID)
		}
	}
	close(client.send)
}

// drop unsubscribes client from symbol and stops the symbol's pump once
// nobody listens.
func (h *Hub) drop(client *Client, symbol string) {
	clients, ok := h.subs[symbol]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		if cancel, ok := h.pumpCancels[symbol]; ok {
			cancel()
			delete(h.pumpCancels, symbol)
		}
		delete(h.subs, symbol)
	}
}

func (h *Hub) pumpTicks(ctx context.Context, symbol string) {
	for tick := range h.ticks.Subscribe(ctx, symbol) {
		data, err := json.Marshal(wsEvent{Type: "tick", Data: tick})
		if err != nil {
			continue
		}
		select {
		case h.broadcast <- outbound{symbol: symbol, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// NotifyAccount pushes an account update to the user's connections. It is
// registered as the order service listener and must not block, so the event
// is dropped when the hub is saturated.
func (h *Hub) NotifyAccount(userID uuid.UUID, account execution.Account) {
	data, err := json.Marshal(wsEvent{Type: "account", Data: account})
	if err != nil {
		h.logger.Error("encode account event", "user_id", userID, "err", err)
		return
	}
	select {
	case h.broadcast <- outbound{userID: userID, data: data}:
	default:
		h.logger.Warn("account event dropped", "user_id", userID)
	}
}

func (h *Hub) fanOut(clients map[*Client]bool, data []byte) {
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
