package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{TenantStatusPending, TenantStatusProvisioning},
		{TenantStatusProvisioning, TenantStatusActive},
		{TenantStatusActive, TenantStatusSuspended},
		{TenantStatusSuspended, TenantStatusActive},
		{TenantStatusActive, TenantStatusReprovisioning},
		{TenantStatusSuspended, TenantStatusReprovisioning},
		{TenantStatusProvisioning, TenantStatusReprovisioning},
		{TenantStatusReprovisioning, TenantStatusActive},
		{TenantStatusActive, TenantStatusDeleted},
		{TenantStatusSuspended, TenantStatusDeleted},
		{TenantStatusProvisioning, TenantStatusDeleted},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc[0], tc[1]), "%s -> %s 应当允许", tc[0], tc[1])
	}

	denied := [][2]string{
		{TenantStatusPending, TenantStatusActive},     // 不能跳过开通
		{TenantStatusPending, TenantStatusSuspended},
		{TenantStatusProvisioning, TenantStatusSuspended},
		{TenantStatusReprovisioning, TenantStatusSuspended},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc[0], tc[1]), "%s -> %s 应当拒绝", tc[0], tc[1])
	}

	// deleted是终态，没有任何出边
	for _, to := range []string{
		TenantStatusPending, TenantStatusProvisioning, TenantStatusActive,
		TenantStatusSuspended, TenantStatusReprovisioning,
	} {
		assert.False(t, CanTransition(TenantStatusDeleted, to), "deleted -> %s 应当拒绝", to)
	}

	// 自迁移幂等
	assert.True(t, CanTransition(TenantStatusActive, TenantStatusActive))
}
