// Package lib 包含基础设施工具库
//
// 本目录包含与传输核心无关的通用工具库：
//
//   - log: 基于 slog 的组件日志封装
//
// # 与 pkg/ 其他目录的关系
//
// pkg/ 目录包含三类内容：
//
//   - interfaces/: 核心与连接层之间的接口
//   - types/: 公共类型定义
//   - lib/: 基础设施工具库（本目录）
//
// # 使用示例
//
//	import "github.com/dep2p/go-genet/pkg/lib/log"
//
//	var logger = log.Logger("core/pump")
package lib
