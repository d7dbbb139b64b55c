/*
包 server 提供状态 HTTP 服务器的生命周期管理与路由。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、带超时的
    Shutdown、异步错误通道与实际监听地址查询。
  - NewStatusHandler：挂载 /health、/status（插件报告与连接快照
    的 JSON）和 /metrics（Prometheus）。
  - Middleware：Recovery、RequestID、RequestLogger 及 Chain 组合。
*/
package server
