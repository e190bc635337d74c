package models

import "math"

// StorageTier 存储档位，字符串取值即为对外协议值
type StorageTier string

const (
	TierFree       StorageTier = "FREE_500MB"
	TierBasic      StorageTier = "BASIC_5GB"
	TierPro        StorageTier = "PRO_50GB"
	TierEnterprise StorageTier = "ENTERPRISE_500GB"
	TierUnlimited  StorageTier = "UNLIMITED"
)

const (
	MiB int64 = 1024 * 1024
	GiB int64 = 1024 * MiB

	// UnlimitedBytes 是 UNLIMITED 档位的哨兵值，不是真正的无穷大
	UnlimitedBytes int64 = math.MaxInt64
)

// AllTiers 按档位从低到高排列
var AllTiers = []StorageTier{TierFree, TierBasic, TierPro, TierEnterprise, TierUnlimited}

// Valid 判断是否为合法档位
func (t StorageTier) Valid() bool {
	for _, tier := range AllTiers {
		if tier == t {
			return true
		}
	}
	return false
}

// TierLimits 档位到字节数的查找表，进程内只构建一次
type TierLimits map[StorageTier]int64

// NewTierLimits 构建查找表，PRO 档位的字节数由配置决定
func NewTierLimits(proTierBytes int64) TierLimits {
	if proTierBytes <= 0 {
		proTierBytes = 50 * GiB
	}
	return TierLimits{
		TierFree:       500 * MiB,
		TierBasic:      5 * GiB,
		TierPro:        proTierBytes,
		TierEnterprise: 500 * GiB,
		TierUnlimited:  UnlimitedBytes,
	}
}

// Limit 返回档位对应的字节数，未知档位返回 0
func (l TierLimits) Limit(tier StorageTier) int64 {
	return l[tier]
}
