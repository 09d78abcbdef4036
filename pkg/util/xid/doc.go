// Package xid 基于 sonyflake 生成 63 位递增唯一 ID，用于回调请求标识等场景。
//
// 机器 ID 按以下顺序确定：WithMachineID 选项、XWECHAT_MACHINE_ID 环境变量（0-65535）、
// 主机名的 FNV 哈希。哈希方式在多实例部署时可能碰撞，需要严格唯一时请显式分配。
package xid
