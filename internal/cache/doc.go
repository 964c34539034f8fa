// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力与提取结果缓存。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化连通性检查与优雅关闭。
支持可选 TLS 加密连接。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL 与 TLS 开关。
  - ResultCache：提取结果缓存，键为 Provider、模型、Schema 与 prompt 的 sha256，
    满足 extraction.ResultCache 接口。

# 错误语义

  - ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
  - ErrClosed 表示 Manager 已关闭。
*/
package cache
