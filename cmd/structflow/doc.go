// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 structflow 命令行程序入口。

# 概述

extract 命令按配置构建提取管线，读取 schema 文件与上下文文本，
把最终 JSON 写到 stdout；--progress 时把每个部分结果写到 stderr。
结果未通过校验时退出码为 2，致命错误为 1。

schema validate 检查 schema 文件能否加载，audit show 打印一次运行的
全部尝试记录，version 打印构建信息。
*/
package main
