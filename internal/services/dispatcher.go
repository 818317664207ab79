package services

import (
	"context"
	"sync"
	"time"

	"nekotab/pkg/logger"
	"nekotab/pkg/queue"
)

// 队列空轮询的阻塞超时
const dequeueTimeout = 5 * time.Second

// Dispatcher 开通任务分发器：消费Redis队列，逐条调用开通服务。
// 单worker串行消费，开通流程本身幂等，消息丢失或重复都能收敛。
type Dispatcher struct {
	queue       *queue.RedisQueue
	provisioner *ProvisionerService

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewDispatcher 创建任务分发器
func NewDispatcher(q *queue.RedisQueue, provisioner *ProvisionerService) *Dispatcher {
	return &Dispatcher{
		queue:       q,
		provisioner: provisioner,
	}
}

// Start 启动消费循环
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop(ctx)

	logger.GetLogger().Info("开通任务分发器已启动")
}

// Stop 停止消费循环，等待当前任务完成
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	logger.GetLogger().Info("开通任务分发器已停止")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	appLogger := logger.GetLogger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := d.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			appLogger.Errorf("队列消费失败: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		d.handle(ctx, msg)
	}
}

// handle 处理一条开通消息，任何失败只影响这一条
func (d *Dispatcher) handle(ctx context.Context, msg *queue.ProvisionMessage) {
	appLogger := logger.GetLogger()
	appLogger.Infof("处理开通任务 job=%s subdomain=%s source=%s", msg.JobID, msg.Subdomain, msg.Source)

	if err := d.queue.UpdateJobStatus(msg.JobID, "running", ""); err != nil {
		appLogger.Warnf("更新任务状态失败 job=%s: %v", msg.JobID, err)
	}

	_, err := d.provisioner.Provision(ctx, &ProvisionRequest{
		Subdomain:  msg.Subdomain,
		Name:       msg.Name,
		OwnerEmail: msg.OwnerEmail,
		OwnerID:    msg.OwnerID,
		Plan:       msg.Plan,
	})
	if err != nil {
		appLogger.Errorf("开通任务失败 job=%s subdomain=%s: %v", msg.JobID, msg.Subdomain, err)
		if uerr := d.queue.UpdateJobStatus(msg.JobID, "failed", err.Error()); uerr != nil {
			appLogger.Warnf("更新任务状态失败 job=%s: %v", msg.JobID, uerr)
		}
		return
	}

	if err := d.queue.UpdateJobStatus(msg.JobID, "success", ""); err != nil {
		appLogger.Warnf("更新任务状态失败 job=%s: %v", msg.JobID, err)
	}
	appLogger.Infof("开通任务完成 job=%s subdomain=%s", msg.JobID, msg.Subdomain)
}
