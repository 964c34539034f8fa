// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理。

# 概述

Open 按驱动名（sqlite、postgres、mysql）选择方言并打开数据库，
PoolManager 统一管理连接池参数与生命周期。sqlite 使用纯 Go 实现，
无需 cgo。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Close()（关闭时记录连接池统计）
    与 WithTransaction。
  - PoolConfig：最大空闲连接数、最大打开连接数与连接最大生命周期。
*/
package database
