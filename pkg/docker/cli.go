package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"nekotab/pkg/logger"
)

// CLI 通过docker命令行驱动Swarm编排层。
// Swarm的栈部署没有稳定的API等价物，docker stack deploy本身就是官方入口。
type CLI struct {
	bin string
}

// NewCLI 创建docker命令行客户端
func NewCLI() *CLI {
	return &CLI{bin: "docker"}
}

// run 执行docker子命令并返回stdout
func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s 失败: %v: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// ImagePull 拉取并校验镜像
func (c *CLI) ImagePull(ctx context.Context, ref string) error {
	_, err := c.run(ctx, "pull", ref)
	return err
}

// StackDeploy 以描述文件部署租户栈
func (c *CLI) StackDeploy(ctx context.Context, composeFile, stackName string) error {
	_, err := c.run(ctx, "stack", "deploy", "--with-registry-auth", "-c", composeFile, stackName)
	return err
}

// StackRemove 移除租户栈，栈不存在不报错
func (c *CLI) StackRemove(ctx context.Context, stackName string) error {
	_, err := c.run(ctx, "stack", "rm", stackName)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

// ListStacks 列出指定前缀的栈名
func (c *CLI) ListStacks(ctx context.Context, prefix string) ([]string, error) {
	out, err := c.run(ctx, "stack", "ls", "--format", "{{.Name}}")
	if err != nil {
		return nil, err
	}

	var stacks []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name != "" && strings.HasPrefix(name, prefix) {
			stacks = append(stacks, name)
		}
	}
	return stacks, nil
}

// ServiceExists 服务是否存在
func (c *CLI) ServiceExists(ctx context.Context, name string) (bool, error) {
	out, err := c.run(ctx, "service", "ls", "--filter", "name="+name, "--format", "{{.Name}}")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// ServiceRunningReplicas 服务当前运行中的副本数
func (c *CLI) ServiceRunningReplicas(ctx context.Context, name string) (int, error) {
	out, err := c.run(ctx, "service", "ls", "--filter", "name="+name, "--format", "{{.Name}} {{.Replicas}}")
	if err != nil {
		return 0, err
	}

	// 输出形如 "tenant-abc_web 1/1"
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != name {
			continue
		}
		parts := strings.SplitN(fields[1], "/", 2)
		running, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("副本数格式异常: %s", fields[1])
		}
		return running, nil
	}
	return 0, nil
}

// ServiceState 服务最新任务的运行状态
func (c *CLI) ServiceState(ctx context.Context, name string) (string, error) {
	out, err := c.run(ctx, "service", "ps", name,
		"--filter", "desired-state=running", "--format", "{{.CurrentState}}")
	if err != nil {
		return "", err
	}

	// 取最新一条任务状态，形如 "Running 5 seconds ago"
	line := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	if line == "" {
		return "", nil
	}
	return strings.ToLower(strings.Fields(line)[0]), nil
}

// ServiceUpdate 按选项滚动更新服务镜像
func (c *CLI) ServiceUpdate(ctx context.Context, name string, opts UpdateOptions) error {
	args := []string{"service", "update", "--image", opts.Image}

	if opts.Parallelism > 0 {
		args = append(args, "--update-parallelism", strconv.Itoa(opts.Parallelism))
	}
	if opts.Delay > 0 {
		args = append(args, "--update-delay", opts.Delay.String())
	}
	if opts.Order != "" {
		args = append(args, "--update-order", opts.Order)
	}
	if opts.FailureAction != "" {
		args = append(args, "--update-failure-action", opts.FailureAction)
	}
	if opts.RegistryAuth {
		args = append(args, "--with-registry-auth")
	}
	// --detach: 更新的健康判定由调用方自行轮询，不阻塞在docker命令上
	args = append(args, "--detach", name)

	_, err := c.run(ctx, args...)
	return err
}

// ServiceRollback 显式回滚到更新前的服务规格
func (c *CLI) ServiceRollback(ctx context.Context, name string) error {
	_, err := c.run(ctx, "service", "update", "--rollback", "--detach", name)
	return err
}

// ServiceScale 调整服务副本数
func (c *CLI) ServiceScale(ctx context.Context, name string, replicas int) error {
	_, err := c.run(ctx, "service", "scale", "--detach",
		fmt.Sprintf("%s=%d", name, replicas))
	return err
}

// ContainerIDByName 按名称前缀查找运行中的容器
func (c *CLI) ContainerIDByName(ctx context.Context, namePrefix string) (string, error) {
	out, err := c.run(ctx, "ps", "--filter", "name="+namePrefix, "--format", "{{.ID}}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.SplitN(out, "\n", 2)[0]), nil
}

// ContainerExec 在容器内执行命令
func (c *CLI) ContainerExec(ctx context.Context, containerID string, command string) (string, error) {
	args := append([]string{"exec", containerID}, strings.Fields(command)...)
	return c.run(ctx, args...)
}

// ContainerExecToFile 在容器内执行命令并把stdout写入本地文件
func (c *CLI) ContainerExecToFile(ctx context.Context, containerID string, command string, outPath string) error {
	args := append([]string{"exec", containerID}, strings.Fields(command)...)
	cmd := exec.CommandContext(ctx, c.bin, args...)

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer outFile.Close()

	var stderr bytes.Buffer
	cmd.Stdout = outFile
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// 输出文件可能残留半截内容，删掉避免被当作有效备份
		os.Remove(outPath)
		return fmt.Errorf("docker exec 失败: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ListVolumes 列出指定前缀的持久卷
func (c *CLI) ListVolumes(ctx context.Context, prefix string) ([]string, error) {
	out, err := c.run(ctx, "volume", "ls", "--format", "{{.Name}}")
	if err != nil {
		return nil, err
	}

	var volumes []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name != "" && strings.HasPrefix(name, prefix) {
			volumes = append(volumes, name)
		}
	}
	return volumes, nil
}

// VolumeRemove 删除持久卷，卷不存在不报错
func (c *CLI) VolumeRemove(ctx context.Context, name string) error {
	_, err := c.run(ctx, "volume", "rm", "--force", name)
	if err != nil && strings.Contains(err.Error(), "no such volume") {
		logger.GetLogger().Debugf("卷 %s 不存在，跳过删除", name)
		return nil
	}
	return err
}
