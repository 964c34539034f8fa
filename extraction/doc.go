// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package extraction 实现基于流式 LLM 响应的结构化提取与校验重试。

# 概述

Client 负责单次尝试：按 Provider 构造请求，经 transport 建立流，
用 streaming.Decoder 逐个取出 data 载荷，再把片段累积为候选值。
Orchestrator 负责多次尝试：每次创建新的 Target，提交候选值并检查
校验结果，无效时在 maxRetries 上限内重试。

# 片段累积

  - Snapshot：每个片段都是完整 JSON，解析成功即替换候选值
  - Delta：片段追加到文本缓冲区，由 CompleteJSON 补全后解析

每次解析成功都会以 (候选值, 片段文本) 调用一次 ProgressFunc。

# 错误语义

  - 传输、解码与回调错误：立即终止，不再重试
  - EXTRACTION_EMPTY / FRAGMENT_PARSE：消耗一次重试
  - 校验失败：消耗一次重试；次数耗尽时返回最后一个无效 Target，error 为 nil

# 可选协作者

ResultCache、AttemptRecorder 与 Observer 通过 Option 注入；
日志、TracerProvider 默认分别为 zap.NewNop() 与 noop 实现。
*/
package extraction
