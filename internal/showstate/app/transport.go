package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/showsync/internal/platform/id"
	"github.com/louisbranch/showsync/internal/showstate/broadcast"
	"github.com/louisbranch/showsync/internal/showstate/domain"
)

// Subscription topic aliases as they appear on the wire.
const (
	topicAliasLights = "lights"
	topicAliasPicks  = "picks"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type setLightPayload struct {
	Name     string `json:"name"`
	RealName string `json:"real_name,omitempty"`
	Mode     string `json:"mode"`
}

type setPickPayload struct {
	Name string `json:"name"`
	Pick string `json:"pick"`
}

type showPickPayload struct {
	Name string `json:"name"`
	Show bool   `json:"show"`
}

type subscribePayload struct {
	Topics []string `json:"topics"`
}

type lightPayload struct {
	Name      string `json:"name"`
	RealName  string `json:"real_name,omitempty"`
	Mode      string `json:"mode"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type pickPayload struct {
	Name      string `json:"name"`
	Pick      string `json:"pick"`
	Show      bool   `json:"show"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type lightEnvelope struct {
	Light lightPayload `json:"light"`
}

type pickEnvelope struct {
	Pick pickPayload `json:"pick"`
}

type lightsEnvelope struct {
	Seq    uint64         `json:"seq,omitempty"`
	Lights []lightPayload `json:"lights"`
}

type picksEnvelope struct {
	Seq   uint64        `json:"seq,omitempty"`
	Picks []pickPayload `json:"picks"`
}

type subscribedEnvelope struct {
	Topics []string `json:"topics"`
}

// wsPeer serializes frame writes onto a single connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsClient tracks one connection's live broadcast sessions, keyed by topic
// alias. Teardown closes every session, which stops its forwarder.
type wsClient struct {
	connID string
	peer   *wsPeer

	mu       sync.Mutex
	sessions map[string]*broadcast.Session
	wg       sync.WaitGroup
}

func newWSClient(peer *wsPeer) *wsClient {
	connID, err := id.NewID()
	if err != nil {
		log.Printf("showsync: generate conn id: %v", err)
		connID = "unknown"
	}
	return &wsClient{
		connID:   connID,
		peer:     peer,
		sessions: make(map[string]*broadcast.Session),
	}
}

func (c *wsClient) subscribed(alias string) bool {
	c.mu.Lock()
	_, ok := c.sessions[alias]
	c.mu.Unlock()
	return ok
}

func (c *wsClient) track(alias string, session *broadcast.Session) {
	c.mu.Lock()
	c.sessions[alias] = session
	c.mu.Unlock()
}

func (c *wsClient) drop(alias string) *broadcast.Session {
	c.mu.Lock()
	session := c.sessions[alias]
	delete(c.sessions, alias)
	c.mu.Unlock()
	return session
}

func (c *wsClient) closeAll() {
	c.mu.Lock()
	sessions := make([]*broadcast.Session, 0, len(c.sessions))
	for alias, session := range c.sessions {
		sessions = append(sessions, session)
		delete(c.sessions, alias)
	}
	c.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
	c.wg.Wait()
}

// NewHandler creates the show-state routes: /up for health and /ws for the
// frame protocol.
func NewHandler(service *domain.Service, router *broadcast.Router) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, service, router)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, service *domain.Service, router *broadcast.Router) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	client := newWSClient(newWSPeer(json.NewEncoder(conn)))
	defer client.closeAll()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(client.peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(client.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "show.light.set":
			handleSetLightFrame(ctx, client, service, frame)
		case "show.pick.set":
			handleSetPickFrame(ctx, client, service, frame)
		case "show.pick.show":
			handleShowPickFrame(ctx, client, service, frame)
		case "show.light.list":
			handleListLightsFrame(ctx, client, service, frame)
		case "show.pick.list":
			handleListPicksFrame(ctx, client, service, frame)
		case "show.subscribe":
			handleSubscribeFrame(client, router, frame)
		case "show.unsubscribe":
			handleUnsubscribeFrame(client, frame)
		default:
			_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleSetLightFrame(ctx context.Context, client *wsClient, service *domain.Service, frame wsFrame) {
	var payload setLightPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid light payload")
		return
	}

	written, err := service.SetLightMode(ctx, domain.SetLightModeInput{
		Name:     payload.Name,
		RealName: payload.RealName,
		Mode:     payload.Mode,
	})
	if err != nil {
		writeDomainError(client, frame.RequestID, err)
		return
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(lightEnvelope{Light: lightToWire(written)}),
	})
}

func handleSetPickFrame(ctx context.Context, client *wsClient, service *domain.Service, frame wsFrame) {
	var payload setPickPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid pick payload")
		return
	}

	written, err := service.SubmitPick(ctx, domain.SubmitPickInput{
		Name: payload.Name,
		Pick: payload.Pick,
	})
	if err != nil {
		writeDomainError(client, frame.RequestID, err)
		return
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(pickEnvelope{Pick: pickToWire(written)}),
	})
}

func handleShowPickFrame(ctx context.Context, client *wsClient, service *domain.Service, frame wsFrame) {
	var payload showPickPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid visibility payload")
		return
	}

	written, err := service.SetPickVisibility(ctx, domain.SetPickVisibilityInput{
		Name: payload.Name,
		Show: payload.Show,
	})
	if err != nil {
		writeDomainError(client, frame.RequestID, err)
		return
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.ack",
		RequestID: frame.RequestID,
		Payload:   mustJSON(pickEnvelope{Pick: pickToWire(written)}),
	})
}

func handleListLightsFrame(ctx context.Context, client *wsClient, service *domain.Service, frame wsFrame) {
	lights, err := service.ListLights(ctx)
	if err != nil {
		writeDomainError(client, frame.RequestID, err)
		return
	}
	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.lights",
		RequestID: frame.RequestID,
		Payload:   mustJSON(lightsEnvelope{Lights: lightsToWire(lights)}),
	})
}

func handleListPicksFrame(ctx context.Context, client *wsClient, service *domain.Service, frame wsFrame) {
	picks, err := service.ListPicks(ctx)
	if err != nil {
		writeDomainError(client, frame.RequestID, err)
		return
	}
	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.picks",
		RequestID: frame.RequestID,
		Payload:   mustJSON(picksEnvelope{Picks: picksToWire(picks)}),
	})
}

func handleSubscribeFrame(client *wsClient, router *broadcast.Router, frame wsFrame) {
	aliases, ok := decodeTopicAliases(client, frame)
	if !ok {
		return
	}

	for _, alias := range aliases {
		if client.subscribed(alias) {
			continue
		}
		session, err := router.Subscribe(broadcastTopicForAlias(alias))
		if err != nil {
			writeDomainError(client, frame.RequestID, err)
			return
		}
		client.track(alias, session)
		client.wg.Add(1)
		go func() {
			defer client.wg.Done()
			forwardPublications(client, session)
		}()
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.subscribed",
		RequestID: frame.RequestID,
		Payload:   mustJSON(subscribedEnvelope{Topics: aliases}),
	})
}

func handleUnsubscribeFrame(client *wsClient, frame wsFrame) {
	aliases, ok := decodeTopicAliases(client, frame)
	if !ok {
		return
	}

	for _, alias := range aliases {
		if session := client.drop(alias); session != nil {
			session.Close()
		}
	}

	_ = client.peer.writeFrame(wsFrame{
		Type:      "show.unsubscribed",
		RequestID: frame.RequestID,
		Payload:   mustJSON(subscribedEnvelope{Topics: aliases}),
	})
}

func decodeTopicAliases(client *wsClient, frame wsFrame) ([]string, bool) {
	var payload subscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid subscription payload")
		return nil, false
	}
	if len(payload.Topics) == 0 {
		_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "topics is required")
		return nil, false
	}

	aliases := make([]string, 0, len(payload.Topics))
	for _, topic := range payload.Topics {
		alias := strings.ToLower(strings.TrimSpace(topic))
		switch alias {
		case topicAliasLights, topicAliasPicks:
			aliases = append(aliases, alias)
		default:
			_ = writeWSError(client.peer, frame.RequestID, "INVALID_ARGUMENT", "unknown topic "+topic)
			return nil, false
		}
	}
	return aliases, true
}

func broadcastTopicForAlias(alias string) string {
	if alias == topicAliasPicks {
		return domain.TopicPickUpdated
	}
	return domain.TopicLightUpdated
}

// forwardPublications drains one broadcast session onto the connection until
// the session closes. Each publication is a full snapshot, so a write failure
// only loses state the next publication restores.
func forwardPublications(client *wsClient, session *broadcast.Session) {
	for publication := range session.Updates() {
		frame, ok := publicationToFrame(publication)
		if !ok {
			log.Printf("showsync: conn=%s dropping publication with unexpected payload %T", client.connID, publication.Payload)
			continue
		}
		if err := client.peer.writeFrame(frame); err != nil {
			log.Printf("showsync: conn=%s snapshot write failed: %v", client.connID, err)
			return
		}
	}
}

func publicationToFrame(publication broadcast.Publication) (wsFrame, bool) {
	switch payload := publication.Payload.(type) {
	case []domain.Light:
		return wsFrame{
			Type:    "show.lights",
			Payload: mustJSON(lightsEnvelope{Seq: publication.Seq, Lights: lightsToWire(payload)}),
		}, true
	case []domain.Pick:
		return wsFrame{
			Type:    "show.picks",
			Payload: mustJSON(picksEnvelope{Seq: publication.Seq, Picks: picksToWire(payload)}),
		}, true
	default:
		return wsFrame{}, false
	}
}

func writeDomainError(client *wsClient, requestID string, err error) {
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrPickRequired):
		code = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, domain.ErrStoreNotConfigured),
		errors.Is(err, domain.ErrPublisherNotConfigured),
		errors.Is(err, broadcast.ErrRouterClosed),
		errors.Is(err, broadcast.ErrTopicUnknown):
		code = "UNAVAILABLE"
	}
	if code == "INTERNAL" {
		log.Printf("showsync: conn=%s internal error: %v", client.connID, err)
	}
	_ = writeWSError(client.peer, requestID, code, err.Error())
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "show.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}

func lightToWire(light domain.Light) lightPayload {
	return lightPayload{
		Name:      light.Name,
		RealName:  light.RealName,
		Mode:      string(light.Mode),
		CreatedAt: light.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: light.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func lightsToWire(lights []domain.Light) []lightPayload {
	results := make([]lightPayload, 0, len(lights))
	for _, light := range lights {
		results = append(results, lightToWire(light))
	}
	return results
}

func pickToWire(pick domain.Pick) pickPayload {
	return pickPayload{
		Name:      pick.Name,
		Pick:      pick.Pick,
		Show:      pick.Show,
		CreatedAt: pick.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: pick.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func picksToWire(picks []domain.Pick) []pickPayload {
	results := make([]pickPayload, 0, len(picks))
	for _, pick := range picks {
		results = append(results, pickToWire(pick))
	}
	return results
}
