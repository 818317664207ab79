package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue Redis队列实现
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// ProvisionMessage 队列中的开通任务消息
type ProvisionMessage struct {
	JobID      string `json:"job_id"`
	Subdomain  string `json:"subdomain"`
	Name       string `json:"name,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	Plan       string `json:"plan,omitempty"`
	Source     string `json:"source"` // api / webhook / cli
	Created    int64  `json:"created"`
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewRedisQueue 创建Redis队列实例
func NewRedisQueue(config *Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "nekotab:queue"
	}

	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping 测试Redis连接
func (q *RedisQueue) Ping() error {
	ctx := context.Background()
	return q.client.Ping(ctx).Err()
}

// Enqueue 将开通任务加入队列
func (q *RedisQueue) Enqueue(msg *ProvisionMessage) error {
	ctx := context.Background()

	if msg.Created == 0 {
		msg.Created = time.Now().Unix()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化任务消息失败: %v", err)
	}

	// 左侧入队
	if err := q.client.LPush(ctx, q.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("任务入队失败: %v", err)
	}

	// 记录任务状态（用于查询）
	jobKey := q.jobKey(msg.JobID)
	jobInfo := map[string]interface{}{
		"job_id":    msg.JobID,
		"subdomain": msg.Subdomain,
		"status":    "queued",
		"queued_at": time.Now().Unix(),
	}
	if err := q.client.HSet(ctx, jobKey, jobInfo).Err(); err != nil {
		return fmt.Errorf("记录任务状态失败: %v", err)
	}

	// 设置任务过期时间（24小时）
	q.client.Expire(ctx, jobKey, 24*time.Hour)

	return nil
}

// Dequeue 阻塞式取出一条开通任务（右侧出队），超时返回nil
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*ProvisionMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	// BRPop返回 [key, value]
	if len(result) < 2 {
		return nil, nil
	}

	var msg ProvisionMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("反序列化任务消息失败: %v", err)
	}

	return &msg, nil
}

// UpdateJobStatus 更新任务状态
func (q *RedisQueue) UpdateJobStatus(jobID, status string, message string) error {
	ctx := context.Background()
	jobKey := q.jobKey(jobID)

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().Unix(),
	}
	if message != "" {
		updates["message"] = message
	}

	if status == "running" {
		updates["started_at"] = time.Now().Unix()
	} else if status == "success" || status == "failed" {
		updates["finished_at"] = time.Now().Unix()
	}

	return q.client.HSet(ctx, jobKey, updates).Err()
}

// GetJobStatus 获取任务状态
func (q *RedisQueue) GetJobStatus(jobID string) (map[string]string, error) {
	ctx := context.Background()
	return q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
}

func (q *RedisQueue) queueKey() string {
	return q.prefix + ":provision"
}

func (q *RedisQueue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.prefix, jobID)
}
