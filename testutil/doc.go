// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 structflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON
  - 流式辅助: CollectEvents 把 iter.Seq2 事件序列收集为切片

# 子包

  - testutil/mocks: MockStreamingClient（脚本化的流式传输）与
    MockExtractor（脚本化的单次提取），均支持错误注入与调用记录
  - testutil/fixtures: SSE 响应体构造器，覆盖 OpenAI、Anthropic
    与快照三种流格式

# 使用示例

	body := fixtures.OpenAIStream(`{"name":`, `"Jason"}`)
	client := mocks.NewMockStreamingClient(body)
	c := extraction.NewClient(client, providers.NewOpenAI(providers.OpenAIConfig{}))
*/
package testutil
