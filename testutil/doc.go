/*
Package testutil 提供 Millennium 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor，
    支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON / WriteYAML

# 子包

  - testutil/mocks: MockTransport 与 MockConn，bridge.Transport 的内存实现，
    支持握手失败与写入失败注入
  - testutil/fixtures: 预置插件记录与文件注册表初始化

# 使用示例

	tr := mocks.NewMockTransport("ws://host/frontend/bravo")
	b := bridge.New(cfg, tr, nil, zap.NewNop())
	testutil.AssertEventuallyTrue(t, func() bool { return h.State() == bridge.StateOpen }, time.Second)
*/
package testutil
