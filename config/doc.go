// Package config 提供 structflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（STRUCTFLOW_ 前缀）的顺序加载，
// Validate 检查取值范围与枚举。
package config
