// Package config 负责加载与校验 bothubd 的启动配置。
package config
