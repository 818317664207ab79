package waitfor

import (
	"context"
	"time"

	"nekotab/pkg/errors"
)

// Predicate 轮询谓词。返回true表示条件满足；返回error仅记录为一次失败的探测，
// 不会中断轮询（外部系统的瞬时错误在下个周期重试）。
type Predicate func() (bool, error)

// Until 以固定间隔轮询谓词直到满足或超时。
// 超时返回 errors.ErrWaitTimeout，表示"结果未知"，调用方不得当作成功处理。
func Until(ctx context.Context, timeout, interval time.Duration, pred Predicate) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, _ := pred()
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
