package netsim

import "errors"

var (
	// ErrLinkClosed 链路已关闭
	ErrLinkClosed = errors.New("link closed")

	// ErrBackpressure 速率或队列已满
	ErrBackpressure = errors.New("link backpressure")
)
