package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/catalog"
	"github.com/harborline/armada-server-go/internal/game"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

// persistTimeout bounds the storage writes made when a game finishes.
const persistTimeout = 5 * time.Second

// Envelope is the wire frame both directions: a type tag and a raw payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	MsgCreateGame = "create_game"
	MsgJoin       = "join"
	MsgAction     = "action"
	MsgDecision   = "decision"
)

// Outbound message types.
const (
	MsgState    = "state"
	MsgError    = "error"
	MsgPending  = "pending"
	MsgGameOver = "game_over"
	MsgEvent    = "event"
)

// ReplaySink stores a finished game's replay log. *repository.ReplayStore
// satisfies it.
type ReplaySink interface {
	Save(ctx context.Context, log *game.ReplayLog) error
}

// SnapshotSink stores a game state snapshot. *repository.SnapshotStore
// satisfies it.
type SnapshotSink interface {
	Save(ctx context.Context, snapshot *game.Snapshot) error
}

// Persistence bundles the hub's optional storage: a database sink for replay
// logs and snapshots, and a file recorder for replay logs. Nil fields are
// skipped, so an in-memory-only server just passes the zero value.
type Persistence struct {
	Replays   ReplaySink
	Snapshots SnapshotSink
	Recorder  *game.ReplayRecorder
}

// CreateGamePayload starts a new hosted game.
type CreateGamePayload struct {
	GameID string             `json:"game_id"`
	Seed   uint64             `json:"seed"`
	Setups []game.PlayerSetup `json:"setups"`
}

// JoinPayload attaches the connection to a game as one player.
type JoinPayload struct {
	GameID string `json:"game_id"`
	Player string `json:"player"`
}

// ActionPayload carries one peer action for a game.
type ActionPayload struct {
	GameID string          `json:"game_id"`
	Action game.PeerAction `json:"action"`
}

// DecisionPayload answers a pending decision.
type DecisionPayload struct {
	GameID   string        `json:"game_id"`
	Player   string        `json:"player"`
	Decision game.Decision `json:"decision"`
}

// StatePayload is the authoritative broadcast after every accepted action.
// The checksum lets a peer verify its local view against the host's.
type StatePayload struct {
	GameID   string          `json:"game_id"`
	Checksum string          `json:"checksum"`
	State    *game.GameState `json:"state"`
}

// PendingPayload tells the deciding player what input is required.
type PendingPayload struct {
	GameID  string               `json:"game_id"`
	Request game.DecisionRequest `json:"request"`
}

// ErrorPayload reports a rejected message.
type ErrorPayload struct {
	GameID  string `json:"game_id,omitempty"`
	Message string `json:"message"`
}

// EventPayload is a resolved rules event forwarded to connected clients for
// presentation. The timestamp is stamped here, at the bus boundary;
// resolution itself carries no wall-clock time.
type EventPayload struct {
	GameID string    `json:"game_id"`
	Type   string    `json:"event"`
	Target int64     `json:"target,omitempty"`
	Source int64     `json:"source,omitempty"`
	Player string    `json:"player,omitempty"`
	Amount int       `json:"amount,omitempty"`
	Data   string    `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}

type session struct {
	engine  *game.Engine
	clients map[*Client]string // client → player id
}

// Hub hosts games and relays state between the authoritative engine and
// connected peers. It contains no rules logic: every action goes through the
// engine's validation, and the hub just fans the result out.
type Hub struct {
	logger   *zap.Logger
	catalog  catalog.Provider
	store    Persistence
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHub creates a hub over the card catalog, writing finished games to the
// given persistence sinks.
func NewHub(provider catalog.Provider, store Persistence, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		catalog: provider,
		store:   store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and starts the
// client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(h, conn, h.logger)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) handle(client *Client, env Envelope) {
	switch env.Type {
	case MsgCreateGame:
		h.createGame(client, env.Payload)
	case MsgJoin:
		h.join(client, env.Payload)
	case MsgAction:
		h.action(client, env.Payload)
	case MsgDecision:
		h.decision(client, env.Payload)
	default:
		client.sendError("", fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (h *Hub) createGame(client *Client, payload json.RawMessage) {
	var req CreateGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendError("", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[req.GameID]; exists {
		client.sendError(req.GameID, "game already exists")
		return
	}
	bus := rules.NewEventBus()
	engine := game.NewEngine(h.catalog, game.AuthorityHost, bus, h.logger)
	if err := engine.CreateGame(req.GameID, req.Seed, req.Setups); err != nil {
		client.sendError(req.GameID, err.Error())
		return
	}
	sess := &session{
		engine:  engine,
		clients: make(map[*Client]string),
	}
	h.sessions[req.GameID] = sess
	// Resolved events publish on the bus while the engine applies an action;
	// the hub is not holding its lock then, so forwarding may take it.
	bus.Subscribe(func(ev rules.Event) { h.forwardEvent(req.GameID, sess, ev) })
	h.logger.Info("game hosted", zap.String("game_id", req.GameID))
	h.broadcastStateLocked(req.GameID, engine.State())
	client.send(stateEnvelope(req.GameID, engine.State()))
}

func (h *Hub) join(client *Client, payload json.RawMessage) {
	var req JoinPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendError("", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[req.GameID]
	if !ok {
		client.sendError(req.GameID, "no such game")
		return
	}
	sess.clients[client] = req.Player
	client.gameID = req.GameID
	h.logger.Info("player joined",
		zap.String("game_id", req.GameID),
		zap.String("player", req.Player))
	client.send(stateEnvelope(req.GameID, sess.engine.State()))
}

func (h *Hub) action(client *Client, payload json.RawMessage) {
	var req ActionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendError("", err.Error())
		return
	}

	h.mu.Lock()
	sess, ok := h.sessions[req.GameID]
	h.mu.Unlock()
	if !ok {
		client.sendError(req.GameID, "no such game")
		return
	}

	state, err := sess.engine.Apply(req.Action)
	if err != nil {
		if pd, pending := game.AsPendingDecision(err); pending {
			h.sendPending(sess, req.GameID, pd.Request)
			return
		}
		client.sendError(req.GameID, err.Error())
		return
	}
	h.broadcastState(req.GameID, state)
}

func (h *Hub) decision(client *Client, payload json.RawMessage) {
	var req DecisionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		client.sendError("", err.Error())
		return
	}

	h.mu.Lock()
	sess, ok := h.sessions[req.GameID]
	h.mu.Unlock()
	if !ok {
		client.sendError(req.GameID, "no such game")
		return
	}

	state, err := sess.engine.ResolveDecision(req.Player, req.Decision)
	if err != nil {
		if pd, pending := game.AsPendingDecision(err); pending {
			h.sendPending(sess, req.GameID, pd.Request)
			return
		}
		client.sendError(req.GameID, err.Error())
		return
	}
	h.broadcastState(req.GameID, state)
}

// sendPending routes the decision request to the player who must answer.
func (h *Hub) sendPending(sess *session, gameID string, request game.DecisionRequest) {
	env, err := marshalEnvelope(MsgPending, PendingPayload{GameID: gameID, Request: request})
	if err != nil {
		h.logger.Error("marshal pending", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client, player := range sess.clients {
		if player == request.Player {
			client.send(env)
		}
	}
}

func (h *Hub) broadcastState(gameID string, state *game.GameState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastStateLocked(gameID, state)
}

func (h *Hub) broadcastStateLocked(gameID string, state *game.GameState) {
	sess, ok := h.sessions[gameID]
	if !ok || state == nil {
		return
	}
	env := stateEnvelope(gameID, state)
	for client := range sess.clients {
		client.send(env)
	}
	if state.Winner != "" {
		over, err := marshalEnvelope(MsgGameOver, ErrorPayload{GameID: gameID, Message: state.Winner})
		if err == nil {
			for client := range sess.clients {
				client.send(over)
			}
		}
		go h.persistFinished(gameID, sess.engine, state)
	}
}

// forwardedEvents is the subset of resolved events worth telling clients
// about by name; the rest are visible through the state broadcast anyway.
var forwardedEvents = map[rules.EventType]bool{
	rules.EventTurnBegin:        true,
	rules.EventAttackDeclared:   true,
	rules.EventBlockerDeclared:  true,
	rules.EventCounterPlayed:    true,
	rules.EventBattleEnd:        true,
	rules.EventCharacterKO:      true,
	rules.EventLifeCardRevealed: true,
	rules.EventCardPlayed:       true,
	rules.EventCardDrawn:        true,
	rules.EventPlayerDefeated:   true,
}

// forwardEvent fans a resolved rules event out to the session's clients.
func (h *Hub) forwardEvent(gameID string, sess *session, ev rules.Event) {
	if !forwardedEvents[ev.Type] {
		return
	}
	env, err := marshalEnvelope(MsgEvent, EventPayload{
		GameID: gameID,
		Type:   string(ev.Type),
		Target: ev.Target,
		Source: ev.Source,
		Player: ev.Player,
		Amount: ev.Amount,
		Data:   ev.Data,
		Time:   time.Now().UTC(),
	})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range sess.clients {
		client.send(env)
	}
}

// persistFinished saves a finished game's replay log and final snapshot to
// whichever sinks are configured.
func (h *Hub) persistFinished(gameID string, eng *game.Engine, state *game.GameState) {
	log := eng.Log()
	if h.store.Recorder != nil {
		if err := h.store.Recorder.Save(log); err != nil {
			h.logger.Error("persist replay file",
				zap.String("game_id", gameID), zap.Error(err))
		}
	}
	if h.store.Replays == nil && h.store.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if h.store.Replays != nil {
		if err := h.store.Replays.Save(ctx, log); err != nil {
			h.logger.Error("persist replay log",
				zap.String("game_id", gameID), zap.Error(err))
		}
	}
	if h.store.Snapshots != nil {
		if err := h.store.Snapshots.Save(ctx, game.NewSnapshot(state)); err != nil {
			h.logger.Error("persist snapshot",
				zap.String("game_id", gameID), zap.Error(err))
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sess := range h.sessions {
		delete(sess.clients, client)
	}
}

func stateEnvelope(gameID string, state *game.GameState) []byte {
	env, err := marshalEnvelope(MsgState, StatePayload{
		GameID:   gameID,
		Checksum: game.StateChecksum(state),
		State:    state,
	})
	if err != nil {
		return nil
	}
	return env
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: data})
}
