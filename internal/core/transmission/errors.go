package transmission

import "errors"

var (
	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("transmission manager closed")

	// ErrTooManyTransmissions 同时存在的传输数超过上限
	ErrTooManyTransmissions = errors.New("too many transmissions")

	// ErrEmptyPayload 负载为空
	ErrEmptyPayload = errors.New("empty payload")

	// ErrPayloadTooLarge 负载所需基因数超过 Block 上限
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("stream closed")

	// ErrTransmissionExists 传输已存在且不能以请求的方式打开
	ErrTransmissionExists = errors.New("transmission exists")

	// ErrTransmissionDisposed 传输已结束
	ErrTransmissionDisposed = errors.New("transmission disposed")

	// ErrDatagramTooLarge 数据报超过缓冲容量
	ErrDatagramTooLarge = errors.New("datagram too large")
)
