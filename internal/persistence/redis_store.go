package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/orchestra/pkg/api"
)

// RedisStore is a Store backed by Redis.
// It uses a simple key structure:
//
//	<prefix>session:<id>   => JSON-encoded session
//	<prefix>idx:sessions   => ZSET of session IDs scored by creation time
//	<prefix>project:<name> => JSON-encoded project
//	<prefix>idx:projects   => SET of project names
//
// Status filtering happens on the decoded payload, so the indexes never go
// stale when a session changes status.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "orchestra:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "orchestra:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keySession(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStore) keySessions() string {
	return s.prefix + "idx:sessions"
}

func (s *RedisStore) keyProject(name string) string {
	return s.prefix + "project:" + name
}

func (s *RedisStore) keyProjects() string {
	return s.prefix + "idx:projects"
}

func (s *RedisStore) SaveSession(ctx context.Context, sess *api.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keySession(sess.ID), data, 0)
	pipe.ZAdd(ctx, s.keySessions(), redis.Z{
		Score:  float64(sess.CreatedAt.UnixNano()),
		Member: sess.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) UpdateSession(ctx context.Context, sess *api.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, s.keySession(sess.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sessionNotFound(sess.ID)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	data, err := s.client.Get(ctx, s.keySession(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionNotFound(id)
		}
		return nil, err
	}
	return decodeSession(data)
}

func (s *RedisStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	ids, err := s.client.ZRange(ctx, s.keySessions(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := []*api.Session{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keySession(id)
	}
	payloads, err := s.fetchAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, data := range payloads {
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		out = append(out, sess)
	}
	// Scores lose sub-microsecond precision; settle ties exactly.
	sortSessions(out)
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.keySession(id))
	pipe.ZRem(ctx, s.keySessions(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return sessionNotFound(id)
	}
	return nil
}

func (s *RedisStore) SaveProject(ctx context.Context, p *api.Project) error {
	data, err := encodeProject(p)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyProject(p.Name), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return projectExists(p.Name)
	}
	return s.client.SAdd(ctx, s.keyProjects(), p.Name).Err()
}

func (s *RedisStore) GetProject(ctx context.Context, name string) (*api.Project, error) {
	data, err := s.client.Get(ctx, s.keyProject(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, projectNotFound(name)
		}
		return nil, err
	}
	return decodeProject(data)
}

func (s *RedisStore) ListProjects(ctx context.Context) ([]*api.Project, error) {
	names, err := s.client.SMembers(ctx, s.keyProjects()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := []*api.Project{}
	if len(names) == 0 {
		return out, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.keyProject(name)
	}
	payloads, err := s.fetchAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, data := range payloads {
		p, err := decodeProject(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortProjects(out)
	return out, nil
}

// fetchAll reads keys in one round trip and skips the ones that vanished
// between reading the index and reading the payload.
func (s *RedisStore) fetchAll(ctx context.Context, keys []string) ([][]byte, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([][]byte, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
