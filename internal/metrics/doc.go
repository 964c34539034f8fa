// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的提取指标采集能力。

# 概述

Collector 实现 extraction.Observer，把片段解析、单次尝试与整次运行
的结果写入 Prometheus 指标。指标注册到调用方注入的 Registerer，
不使用全局默认注册表。

# 指标

  - extraction_attempts_total{provider,outcome}
  - extraction_runs_total{outcome}
  - extraction_fragments_total{provider,result}
  - extraction_attempt_duration_seconds{provider}

Handler 通过 promhttp 暴露 /metrics。
*/
package metrics
