// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 描述各类 LLM 流式端点的协议差异：如何根据 Schema 与上下文
构造请求，如何把单个 SSE data 载荷解析为与服务商无关的 Fragment，
以及片段应按快照还是增量累积。

# 核心类型

  - Provider — 请求构造、载荷解析、累积模式三项能力
  - Fragment — 载荷中的 JSON 文本与结束标记
  - Accumulation — Snapshot（整体替换）/ Delta（追加后补全）

# 内置实现

  - OpenAIProvider — Chat Completions，response_format=json_object，[DONE] 结束
  - AnthropicProvider — Messages API，content_block_delta 文本增量，message_stop 结束
  - SnapshotProvider — 每个事件推送完整 JSON 快照的通用端点

# 核心函数

  - New — 按 config.LLMConfig.Provider 选择实现
  - BuildSystemPrompt — 把 Schema 嵌入系统提示
  - BearerTokenHeaders / JoinURL / ChooseModel — 请求构造辅助

流内错误事件（如 Anthropic 的 error 事件）被映射为传输类错误码，
由上层按致命错误处理；无法解析的载荷返回 FRAGMENT_PARSE。
*/
package providers
