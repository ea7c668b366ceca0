// Package genet 提供基于不可靠数据报的可靠消息与流传输引擎
//
// 消息被切分为基因（gene），每个基因独立发送、独立确认、超时重传，
// 接收端按位置重组。发送速率由 CUBIC 拥塞控制调度。
//
// # 核心概念
//
//   - Engine: 引擎，组装配置、传输管理器工厂、I/O 泵与指标采集器
//   - Session: 每连接会话，封装一个传输管理器
//   - 传输模式: Rama（≤3 个基因的小消息）、Block（大消息）、Stream（流）
//
// # 快速开始
//
//	engine, err := genet.Start(ctx, genet.WithPreset("lan"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// conn 实现 interfaces.Connection，sender 实现 interfaces.NetSender
//	session, err := engine.Open(conn, sender, genet.RoleDialer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// 收到的数据报交给会话
//	transport.OnDatagram(session.HandleDatagram)
//
//	// 发送消息并等待全部基因确认
//	st, _ := session.Submit(payload, kind, id)
//	outcome := st.Wait(ctx)
//
// # 流
//
//	out, _ := session.OpenStreamSend(kind, id)
//	out.Write(ctx, data)
//	out.Close(ctx)
//
//	in, _ := peer.OpenStreamReceive(out.ID(), 0)
//	for {
//	    o, n := in.Read(ctx, buf)
//	    ...
//	}
//
// # 配置
//
// 配置集中在 config 包，可从 JSON 文件加载（WithConfigFile）或使用预设
// （WithPreset: lan、wan、diagnostic）。
package genet
