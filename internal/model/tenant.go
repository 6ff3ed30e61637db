package model

import "time"

// Tenant 店铺（由主业务服务维护，本服务只读）
type Tenant struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug      string    `gorm:"type:varchar(63);uniqueIndex:uk_tenants_slug" json:"slug"` // 子域名
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Status    string    `gorm:"type:enum('active','suspended','deleted');default:'active'" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// Tenant status constants
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)
