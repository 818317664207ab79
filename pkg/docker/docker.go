package docker

import (
	"context"
	"time"
)

// UpdateOptions 服务滚动更新选项
type UpdateOptions struct {
	Image         string
	Parallelism   int           // 每批更新的副本数
	Delay         time.Duration // 批次间隔
	Order         string        // start-first: 新副本健康后再停旧副本
	FailureAction string        // rollback: 编排层兜底自动回滚
	RegistryAuth  bool
}

// Client 编排层客户端。控制面只依赖这组原语：
// 声明式栈部署、副本数/运行状态查询、带失败策略的更新和显式回滚。
type Client interface {
	// ImagePull 拉取并校验镜像
	ImagePull(ctx context.Context, ref string) error

	// StackDeploy 以描述文件部署租户栈
	StackDeploy(ctx context.Context, composeFile, stackName string) error

	// StackRemove 移除租户栈，栈不存在不报错
	StackRemove(ctx context.Context, stackName string) error

	// ListStacks 列出指定前缀的栈名（编排层实时清单）
	ListStacks(ctx context.Context, prefix string) ([]string, error)

	// ServiceExists 服务是否存在
	ServiceExists(ctx context.Context, name string) (bool, error)

	// ServiceRunningReplicas 服务当前运行中的副本数
	ServiceRunningReplicas(ctx context.Context, name string) (int, error)

	// ServiceState 服务最新任务的运行状态（running/starting/failed等）
	ServiceState(ctx context.Context, name string) (string, error)

	// ServiceUpdate 按选项滚动更新服务镜像
	ServiceUpdate(ctx context.Context, name string, opts UpdateOptions) error

	// ServiceRollback 显式回滚到更新前的服务规格
	ServiceRollback(ctx context.Context, name string) error

	// ServiceScale 调整服务副本数（暂停/恢复租户）
	ServiceScale(ctx context.Context, name string, replicas int) error

	// ContainerIDByName 按名称前缀查找运行中的容器，未找到返回空串
	ContainerIDByName(ctx context.Context, namePrefix string) (string, error)

	// ContainerExec 在容器内执行命令（同步迁移入口）
	ContainerExec(ctx context.Context, containerID string, command string) (string, error)

	// ContainerExecToFile 在容器内执行命令并把stdout写入本地文件（媒体导出）
	ContainerExecToFile(ctx context.Context, containerID string, command string, outPath string) error

	// ListVolumes 列出指定前缀的持久卷
	ListVolumes(ctx context.Context, prefix string) ([]string, error)

	// VolumeRemove 删除持久卷，卷不存在不报错
	VolumeRemove(ctx context.Context, name string) error
}
