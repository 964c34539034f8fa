// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 structflow 提供 TracerProvider 与出站请求的 trace context 传播器。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务，也不修改全局 provider。
package telemetry
