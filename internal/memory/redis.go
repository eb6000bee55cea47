package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "voicebot:conv:"

// RedisStore keeps conversations in redis so several voicebot processes share
// memory. Each user has a capped turn list and a preference hash, both
// expiring after the idle TTL.
type RedisStore struct {
	client *redis.Client
	limits Limits
}

func NewRedisStore(ctx context.Context, addr string, limits Limits) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	log.Info().Str("addr", addr).Msg("conversation memory backed by redis")
	return &RedisStore{client: client, limits: limits.withDefaults()}, nil
}

func turnsKey(userID string) string { return redisKeyPrefix + userID + ":turns" }

func prefsKey(userID string) string { return redisKeyPrefix + userID + ":prefs" }

func usersKey() string { return redisKeyPrefix + "users" }

func (s *RedisStore) Append(ctx context.Context, userID string, turn Turn, prefs map[string]string) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return errors.Wrap(err, "encode turn")
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, turnsKey(userID), raw)
		p.LTrim(ctx, turnsKey(userID), int64(-s.limits.MaxTurns), -1)
		p.Expire(ctx, turnsKey(userID), s.limits.IdleTTL)
		if len(prefs) > 0 {
			fields := make(map[string]any, len(prefs))
			for k, v := range prefs {
				fields[k] = v
			}
			p.HSet(ctx, prefsKey(userID), fields)
			p.Expire(ctx, prefsKey(userID), s.limits.IdleTTL)
		}
		p.SAdd(ctx, usersKey(), userID)
		return nil
	})
	return errors.Wrap(err, "append turn")
}

func (s *RedisStore) Get(ctx context.Context, userID string, limit int) (Conversation, bool, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, turnsKey(userID), start, -1).Result()
	if err != nil {
		return Conversation{}, false, errors.Wrap(err, "read turns")
	}
	if len(raw) == 0 {
		return Conversation{}, false, nil
	}
	turns := decodeTurns(raw)
	prefs, err := s.client.HGetAll(ctx, prefsKey(userID)).Result()
	if err != nil {
		return Conversation{}, false, errors.Wrap(err, "read preferences")
	}
	return Conversation{UserID: userID, Turns: turns, Preferences: prefs}, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, turnsKey(userID), prefsKey(userID))
		p.SRem(ctx, usersKey(), userID)
		return nil
	})
	return errors.Wrap(err, "clear conversation")
}

// Stats walks the user set and prunes members whose turns have expired.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	st := newStats()
	users, err := s.client.SMembers(ctx, usersKey()).Result()
	if err != nil {
		return st, errors.Wrap(err, "list users")
	}
	for _, id := range users {
		raw, err := s.client.LRange(ctx, turnsKey(id), 0, -1).Result()
		if err != nil {
			return st, errors.Wrap(err, "read turns")
		}
		if len(raw) == 0 {
			s.client.SRem(ctx, usersKey(), id)
			continue
		}
		st.add(decodeTurns(raw))
	}
	return st, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeTurns(raw []string) []Turn {
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable conversation turn")
			continue
		}
		turns = append(turns, t)
	}
	return turns
}
