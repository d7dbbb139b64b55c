// Package settings holds the plugin enablement registry.
//
// A Store keeps the ordered list of PluginRecord values known to the host and
// persists it through a Persister after every mutation. Three persisters are
// provided: a YAML file (the default), a SQL table through gorm, and a single
// redis key. Every persister writes the whole registry atomically, so two
// processes racing on the same registry can lose an update but never corrupt
// it.
//
// Usage:
//
//	store, err := settings.Open(ctx, settings.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//	err = store.SetEnabled(ctx, "example-plugin", true)
package settings
