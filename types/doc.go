// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 structflow 的全局共享错误体系。

# 概述

types 是最底层的公共包，不依赖任何内部包。解码器、传输层、Provider
与编排器都通过 *Error 与 ErrorCode 表达失败，从而让上层可以区分
“传输失败（致命，不重试）” 与 “语义失败（消耗一次重试）”。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable、Provider 与 Cause
  - IsTransportFailure — 判断错误是否属于传输层失败
  - IsCode / GetErrorCode — 沿错误链提取错误码
*/
package types
