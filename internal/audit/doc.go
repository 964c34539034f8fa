// Package audit 把每次提取尝试（提示、候选、校验错误、耗时）写入关系数据库，
// 供事后审计与回放。存储层基于 internal/database 的 GORM 连接池。
package audit
