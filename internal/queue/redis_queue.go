package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"uho/internal/config"
	"uho/internal/models"
)

// NewClient builds the Redis client shared by the queue, the rate limiter and
// the HTML cache.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// RedisQueue keeps jobs as Redis hashes with a waiting sorted set ordered by
// id, which follows creation order.
type RedisQueue struct {
	client       *redis.Client
	seqKey       string
	jobPrefix    string
	waitingKey   string
	completedKey string
	lease        time.Duration
	loc          *time.Location
	now          func() time.Time
}

// NewRedisQueue builds a queue on top of client. Claimed jobs stay hidden from
// other pollers for lease.
func NewRedisQueue(client *redis.Client, lease time.Duration, loc *time.Location) *RedisQueue {
	switch {
	case lease <= 0:
		lease = 5 * time.Minute
	case lease < time.Millisecond:
		// PX takes whole milliseconds and rejects 0.
		lease = time.Millisecond
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RedisQueue{
		client:       client,
		seqKey:       "uho:jobs:seq",
		jobPrefix:    "uho:job:",
		waitingKey:   "uho:jobs:waiting",
		completedKey: "uho:jobs:completed",
		lease:        lease,
		loc:          loc,
		now:          time.Now,
	}
}

func (q *RedisQueue) jobKey(id int64) string {
	return q.jobPrefix + strconv.FormatInt(id, 10)
}

func (q *RedisQueue) leaseKey(id int64) string {
	return q.jobKey(id) + ":lease"
}

// Enqueue inserts one waiting job per action. The batch is written by a
// single script, so either every job is stored or none is.
func (q *RedisQueue) Enqueue(ctx context.Context, actions ...string) ([]models.Job, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	created := q.now().UTC()
	args := make([]any, 0, len(actions)+3)
	args = append(args, q.jobPrefix, models.StatusWaiting, created.UnixNano())
	for _, action := range actions {
		args = append(args, action)
	}
	first, err := enqueueScript.Run(ctx, q.client, []string{q.seqKey, q.waitingKey}, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("enqueue jobs: %w", err)
	}
	jobs := make([]models.Job, 0, len(actions))
	for i, action := range actions {
		jobs = append(jobs, models.Job{
			ID:          first + int64(i),
			Action:      action,
			Status:      models.StatusWaiting,
			DateCreated: created,
		})
	}
	return jobs, nil
}

// ClaimNext leases the oldest waiting job that is not already leased.
func (q *RedisQueue) ClaimNext(ctx context.Context) (models.Job, bool, error) {
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.waitingKey},
		q.jobPrefix, q.lease.Milliseconds(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	id, err := strconv.ParseInt(fmt.Sprint(res), 10, 64)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("unexpected claim result %v: %w", res, err)
	}
	job, err := q.Get(ctx, id)
	if err != nil {
		return models.Job{}, false, err
	}
	return job, true, nil
}

// SetStatus moves a waiting job to a terminal status.
func (q *RedisQueue) SetStatus(ctx context.Context, id int64, status string) error {
	if !models.IsTerminal(status) {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	completed := q.now().UTC()
	res, err := setStatusScript.Run(ctx, q.client,
		[]string{q.jobKey(id), q.waitingKey, q.completedKey, q.leaseKey(id)},
		models.StatusWaiting, status, completed.UnixNano(), id, completed.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return models.ErrJobFinished
	default:
		return models.ErrJobNotFound
	}
}

// Repeat copies the action of an existing job into a new waiting job.
func (q *RedisQueue) Repeat(ctx context.Context, id int64) (models.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	jobs, err := q.Enqueue(ctx, job.Action)
	if err != nil {
		return models.Job{}, err
	}
	return jobs[0], nil
}

// Get fetches a job by id.
func (q *RedisQueue) Get(ctx context.Context, id int64) (models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return models.Job{}, fmt.Errorf("read job: %w", err)
	}
	if len(fields) == 0 {
		return models.Job{}, models.ErrJobNotFound
	}
	return decodeJob(id, fields), nil
}

// List walks jobs from the newest id down, optionally filtered by status.
func (q *RedisQueue) List(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	last, err := q.client.Get(ctx, q.seqKey).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job sequence: %w", err)
	}

	const batch = 100
	var jobs []models.Job
	for hi := last; hi >= 1 && len(jobs) < limit; hi -= batch {
		pipe := q.client.Pipeline()
		cmds := make(map[int64]*redis.MapStringStringCmd, batch)
		for id := hi; id > hi-batch && id >= 1; id-- {
			cmds[id] = pipe.HGetAll(ctx, q.jobKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for id := hi; id > hi-batch && id >= 1 && len(jobs) < limit; id-- {
			fields := cmds[id].Val()
			if len(fields) == 0 {
				continue
			}
			job := decodeJob(id, fields)
			if status != "" && job.Status != status {
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// CountWaiting returns the number of waiting jobs, leased or not.
func (q *RedisQueue) CountWaiting(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.waitingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count waiting jobs: %w", err)
	}
	return n, nil
}

// CountCompletedToday returns the number of jobs finished since local midnight.
func (q *RedisQueue) CountCompletedToday(ctx context.Context) (int64, error) {
	t := q.now().In(q.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, q.loc)
	n, err := q.client.ZCount(ctx, q.completedKey, strconv.FormatInt(midnight.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count completed jobs: %w", err)
	}
	return n, nil
}

func decodeJob(id int64, fields map[string]string) models.Job {
	job := models.Job{
		ID:     id,
		Action: fields["action"],
		Status: fields["status"],
	}
	if ns, err := strconv.ParseInt(fields["date_created"], 10, 64); err == nil {
		job.DateCreated = time.Unix(0, ns).UTC()
	}
	if ns, err := strconv.ParseInt(fields["date_completed"], 10, 64); err == nil {
		t := time.Unix(0, ns).UTC()
		job.DateCompleted = &t
	}
	return job
}

var enqueueScript = redis.NewScript(`
local n = #ARGV - 3
local last = redis.call('INCRBY', KEYS[1], n)
local first = last - n + 1
for i = 1, n do
  local id = first + i - 1
  redis.call('HMSET', ARGV[1] .. id, 'action', ARGV[3 + i], 'status', ARGV[2], 'date_created', ARGV[3])
  redis.call('ZADD', KEYS[2], id, id)
end
return first
`)

var claimScript = redis.NewScript(`
local offset = 0
while true do
  local ids = redis.call('ZRANGE', KEYS[1], offset, offset + 99)
  if #ids == 0 then
    return false
  end
  for _, id in ipairs(ids) do
    if redis.call('SET', ARGV[1] .. id .. ':lease', '1', 'NX', 'PX', ARGV[2]) then
      return id
    end
  end
  offset = offset + 100
end
`)

var setStatusScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status ~= ARGV[1] then
  return 0
end
redis.call('HMSET', KEYS[1], 'status', ARGV[2], 'date_completed', ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[4])
redis.call('DEL', KEYS[4])
return 1
`)
