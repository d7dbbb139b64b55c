// =============================================================================
// 📦 测试数据工厂 - 插件注册表
// =============================================================================
// 提供预定义的插件记录，用于测试
// =============================================================================
package fixtures

import (
	"context"
	"testing"

	"github.com/BaSui01/millennium/settings"
)

// PluginRecords 返回 alpha（启用）、bravo（禁用）、charlie（启用）三条记录
func PluginRecords() []settings.PluginRecord {
	return []settings.PluginRecord{
		{Name: "alpha", Enabled: true, BackendEntry: "/plugins/alpha/backend", FrontendEntry: "/plugins/alpha/frontend.js"},
		{Name: "bravo", Enabled: false, FrontendEntry: "/plugins/bravo/frontend.js"},
		{Name: "charlie", Enabled: true, BackendEntry: "/plugins/charlie/backend", FrontendEntry: "/plugins/charlie/frontend.js"},
	}
}

// EnabledPlugins 返回 n 条启用的插件记录，名称为 p0..p(n-1)
func EnabledPlugins(names ...string) []settings.PluginRecord {
	out := make([]settings.PluginRecord, 0, len(names))
	for _, name := range names {
		out = append(out, settings.PluginRecord{
			Name:          name,
			Enabled:       true,
			FrontendEntry: "/plugins/" + name + "/frontend.js",
		})
	}
	return out
}

// SeedFile 将 records 写入 path 处的文件注册表
func SeedFile(t testing.TB, path string, records []settings.PluginRecord) {
	t.Helper()
	if err := settings.NewFilePersister(path).Save(context.Background(), records); err != nil {
		t.Fatalf("failed to seed registry %s: %v", path, err)
	}
}
