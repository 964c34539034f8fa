// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 提供 LLM 流式响应（Server-Sent Events）的增量解码。

# 概述

LLM 的流式响应是一个长连接 HTTP body，按行分帧。只有以 `data:` 开头的
行携带有效载荷，其余行（event:、id:、注释、空行、keep-alive）一律忽略。
Decoder 以拉取方式工作：只有调用方请求下一个事件时才会从源读取字节，
内存占用始终限制在一行加一个读块之内。

# 核心类型

  - Decoder — 单次遍历的 payload 序列，提供 Next/Payload/Err 与 Events(iter.Seq2)
  - ParseDataLine — 单行 `data:` 前缀解析

# 终止语义

  - 仅 io.EOF 表示流结束；(0, nil) 的读取被视为瞬时状态并重试。
  - 末尾没有换行符的最后一行仍然作为一行交付。
  - 非 EOF 的读取错误以 types.ErrStreamRead 终止序列。
*/
package streaming
