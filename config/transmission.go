package config

import (
	"errors"
	"fmt"
)

// HeaderSize 首个基因头部：4 字节数据类型 + 8 字节数据标识
const HeaderSize = 12

// TransmissionConfig 传输配置
type TransmissionConfig struct {
	// GeneSize 单个基因的负载容量（字节，含首基因 12 字节头部）
	// 默认值: 1200
	GeneSize int `json:"gene_size"`

	// MaxTransmissions 每个连接同时存在的最大传输数
	// 默认值: 1024
	MaxTransmissions int `json:"max_transmissions"`

	// InstantAckMaxGenes Rama 完成时总基因数不超过该值则立即确认
	// 默认值: 2
	InstantAckMaxGenes int `json:"instant_ack_max_genes"`

	// DisposedHistory 记住已释放传输 ID 的数量（迟到基因确认后丢弃）
	// 默认值: 4096
	DisposedHistory int `json:"disposed_history"`

	// MaxBlockGenes Block 模式允许的最大基因数
	// 默认值: 65536
	MaxBlockGenes int `json:"max_block_genes"`

	// RamaCap RamaControl 每轮最多发送的基因数
	// 默认值: 32
	RamaCap int `json:"rama_cap"`
}

// DefaultTransmissionConfig 返回默认传输配置
func DefaultTransmissionConfig() TransmissionConfig {
	return TransmissionConfig{
		GeneSize:           1200,
		MaxTransmissions:   1024,
		InstantAckMaxGenes: 2,
		DisposedHistory:    4096,
		MaxBlockGenes:      65536,
		RamaCap:            32,
	}
}

// Validate 验证传输配置
func (c *TransmissionConfig) Validate() error {
	if c.GeneSize <= HeaderSize {
		return fmt.Errorf("gene_size must exceed header size %d, got %d", HeaderSize, c.GeneSize)
	}
	if c.GeneSize > 65000 {
		return fmt.Errorf("gene_size too large: %d", c.GeneSize)
	}
	if c.MaxTransmissions <= 0 {
		return errors.New("max_transmissions must be positive")
	}
	if c.InstantAckMaxGenes < 0 || c.InstantAckMaxGenes > 3 {
		return fmt.Errorf("instant_ack_max_genes must be in [0,3], got %d", c.InstantAckMaxGenes)
	}
	if c.DisposedHistory <= 0 {
		return errors.New("disposed_history must be positive")
	}
	if c.MaxBlockGenes <= 3 {
		return fmt.Errorf("max_block_genes must exceed 3, got %d", c.MaxBlockGenes)
	}
	if c.RamaCap <= 0 {
		return errors.New("rama_cap must be positive")
	}
	return nil
}

// FirstDataCapacity 首个基因可承载的应用数据字节数（扣除头部）
func (c *TransmissionConfig) FirstDataCapacity() int {
	return c.GeneSize - HeaderSize
}
