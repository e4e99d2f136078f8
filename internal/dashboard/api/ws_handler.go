package api

import (
	"context"
	"encoding/json"
	"log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"

	"dut-dashboard-service/internal/dashboard/events"
	"dut-dashboard-service/internal/dashboard/hub"
)

var upgrader = websocket.HertzUpgrader{}

// clientMessage is the union of client -> server websocket messages:
//   - {"type": "subscribe", "targets": ["all"] | [name, ...]}
//   - {"type": "execute_command", "target": ..., "command_name": ...}
type clientMessage struct {
	Type        string   `json:"type"`
	Targets     []string `json:"targets"`
	Target      string   `json:"target"`
	CommandName string   `json:"command_name"`
}

// WSHandler serves the realtime endpoint. Connecting clients get one
// targets_list snapshot, then only events matching their subscription; there
// is no replay, reconnecting clients reconcile through the snapshot.
type WSHandler struct {
	Hub     *hub.Hub
	Targets *TargetHandler
}

func NewWSHandler(h *hub.Hub, targets *TargetHandler) *WSHandler {
	return &WSHandler{Hub: h, Targets: targets}
}

func (h *WSHandler) Serve(ctx context.Context, c *app.RequestContext) {
	err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
		client := h.Hub.Register(conn)
		defer h.Hub.Unregister(client)

		h.sendTargetsList(client)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("WebSocket client disconnected: %v", err)
				return
			}

			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				h.Hub.SendTo(client, events.Event{
					Type: events.TypeError,
					Data: events.ErrorPayload{Detail: "Invalid JSON message"},
				})
				continue
			}

			switch msg.Type {
			case "subscribe":
				targets := msg.Targets
				if len(targets) == 0 {
					targets = []string{hub.SubscribeAll}
				}
				h.Hub.Subscribe(client, targets)
				h.sendTargetsList(client)
			case "execute_command":
				h.handleExecute(ctx, client, msg)
			default:
				log.Printf("Unknown websocket message type: %q", msg.Type)
				h.Hub.SendTo(client, events.Event{
					Type: events.TypeError,
					Data: events.ErrorPayload{Detail: "Unknown message type: " + msg.Type},
				})
			}
		}
	})
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
	}
}

func (h *WSHandler) sendTargetsList(client *hub.Client) {
	h.Hub.SendTo(client, events.Event{
		Type: events.TypeTargetsList,
		Data: targetsWithOutputs(h.Targets.Registry, h.Targets.Cache),
	})
}

func (h *WSHandler) handleExecute(ctx context.Context, client *hub.Client, msg clientMessage) {
	if msg.Target == "" || msg.CommandName == "" {
		h.Hub.SendTo(client, events.Event{
			Type: events.TypeError,
			Data: events.ErrorPayload{Detail: "Missing target or command_name"},
		})
		return
	}

	output, _, errMsg := h.Targets.executeAdHoc(ctx, msg.Target, msg.CommandName)
	if errMsg != "" {
		h.Hub.SendTo(client, events.Event{
			Type: events.TypeError,
			Data: events.ErrorPayload{Detail: errMsg},
		})
		return
	}

	// Subscribed clients (including this one, if subscribed) already received
	// the broadcast; send directly so an unsubscribed requester sees its own
	// result too.
	h.Hub.SendTo(client, events.Event{
		Type: events.TypeCommandOutput,
		Data: events.CommandOutputPayload{Target: msg.Target, Output: output},
	})
}
