package sync

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/ewancrowle/porter3/internal/config"
	"github.com/ewancrowle/porter3/internal/strategy"
	"github.com/redis/go-redis/v9"
)

// ticketChannelSuffix names the second pub/sub channel this core mirrors
// session-ticket issuance over, the same way the route-sync channel
// already does for strategy.Route. Token-cache evictions are not
// published, and the events carry no resumption secret, so peer shards'
// caches are not populated from this channel.
const ticketChannelSuffix = ":tickets"

// ticketEvent is published whenever this shard issues a session ticket
// and its paired address-validation token. It carries only the PSK
// identity and token, not the resumption secret, so a peer shard that
// receives it cannot accept 0-RTT for that ticket; a client whose next
// datagram lands on a different shard falls back to a full handshake.
type ticketEvent struct {
	PSKIdentityHex string `json:"psk_identity"`
	TokenHex       string `json:"token"`
}

type RedisSync struct {
	client        *redis.Client
	channel       string
	ticketChannel string
	simple        *strategy.SimpleStrategy
	agones        *strategy.AgonesStrategy
}

func NewRedisSync(cfg *config.Config, simple *strategy.SimpleStrategy, agones *strategy.AgonesStrategy) *RedisSync {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &RedisSync{
		client:        client,
		channel:       cfg.Redis.Channel,
		ticketChannel: cfg.Redis.Channel + ticketChannelSuffix,
		simple:        simple,
		agones:        agones,
	}
}

// PublishTicketIssued announces a newly issued session ticket and its
// bound address-validation token to peer shards. Best-effort: a publish
// failure only means a 0-RTT attempt landing on a different shard falls
// back to a full handshake, which spec.md §4.K already treats as the
// normal failure path, so errors are logged and swallowed rather than
// propagated.
func (s *RedisSync) PublishTicketIssued(pskIdentity, token []byte) {
	if s == nil {
		return
	}

	data, err := json.Marshal(ticketEvent{
		PSKIdentityHex: hex.EncodeToString(pskIdentity),
		TokenHex:       hex.EncodeToString(token),
	})
	if err != nil {
		log.Printf("Error marshaling ticket-issued event: %v", err)
		return
	}

	if err := s.client.Publish(context.Background(), s.ticketChannel, data).Err(); err != nil {
		log.Printf("Error publishing ticket-issued event: %v", err)
	}
}

// SubscribeTickets mirrors PublishTicketIssued events into a handler
// supplied by the caller (quicgateway owns the actual token/session
// caches; this package only moves bytes between shards, the same
// separation Subscribe already keeps for strategy.Route).
func (s *RedisSync) SubscribeTickets(ctx context.Context, onTicket func(pskIdentity, token []byte)) {
	if s == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, s.ticketChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var evt ticketEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Printf("Error unmarshaling ticket-issued event: %v", err)
			continue
		}
		pskIdentity, err := hex.DecodeString(evt.PSKIdentityHex)
		if err != nil {
			continue
		}
		token, err := hex.DecodeString(evt.TokenHex)
		if err != nil {
			continue
		}
		onTicket(pskIdentity, token)
	}
}

func (s *RedisSync) LoadInitialRoutes(ctx context.Context) error {
	if s == nil {
		return nil
	}

	// Load Simple routes from a Redis Hash "porter:routes:simple"
	simpleRoutes, err := s.client.HGetAll(ctx, "porter:routes:simple").Result()
	if err != nil {
		return err
	}
	for fqdn, target := range simpleRoutes {
		s.simple.UpdateRoute(fqdn, target)
		log.Printf("Loaded route from Redis: %s -> %s (simple)", fqdn, target)
	}

	// Load Agones routes from a Redis Hash "porter:routes:agones"
	agonesRoutes, err := s.client.HGetAll(ctx, "porter:routes:agones").Result()
	if err != nil {
		return err
	}
	for fqdn, fleet := range agonesRoutes {
		s.agones.UpdateRoute(fqdn, fleet)
		log.Printf("Loaded route from Redis: %s -> %s (agones)", fqdn, fleet)
	}

	return nil
}

func (s *RedisSync) PublishUpdate(ctx context.Context, route strategy.Route) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(route)
	if err != nil {
		return err
	}

	// Persist in Hash
	key := "porter:routes:" + string(route.Type)
	if err := s.client.HSet(ctx, key, route.FQDN, route.Target).Err(); err != nil {
		return err
	}

	// Publish message
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *RedisSync) Subscribe(ctx context.Context) {
	if s == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var route strategy.Route
		if err := json.Unmarshal([]byte(msg.Payload), &route); err != nil {
			log.Printf("Error unmarshaling sync message: %v", err)
			continue
		}

		log.Printf("Syncing route update from Redis: %s -> %s (%s)", route.FQDN, route.Target, route.Type)
		if route.Type == strategy.StrategySimple {
			s.simple.UpdateRoute(route.FQDN, route.Target)
		} else if route.Type == strategy.StrategyAgones {
			s.agones.UpdateRoute(route.FQDN, route.Target)
		}
	}
}
