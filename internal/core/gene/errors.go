package gene

import "errors"

var (
	// ErrShortFrame 帧长度不足
	ErrShortFrame = errors.New("gene: short frame")

	// ErrUnknownFrame 未知帧类型
	ErrUnknownFrame = errors.New("gene: unknown frame kind")

	// ErrShortHeader 第 0 个基因不足以容纳数据头
	ErrShortHeader = errors.New("gene: short data header")

	// ErrGeneTooLarge 负载超过缓冲容量
	ErrGeneTooLarge = errors.New("gene: payload exceeds buffer capacity")

	// ErrInvalidMode 非法传输模式
	ErrInvalidMode = errors.New("gene: invalid transmission mode")
)
