/*
Package loader starts the enabled plugins and tracks their progress.

Each plugin has two halves. The backend half is a process launched by a
BackendRunner and restarted when it exits. The frontend half is a bridge
connection to the plugin's browser context at <ipc_url>/frontend/<name>. The
plugin's Phase is derived from the two halves:

	not_started -> connecting_backend -> connecting_frontend -> ready
	                      |                      |
	                      +------> failed <------+

Either half may open first. A half that exhausts its retries fails the
plugin; other plugins are unaffected.

Typical use:

	l := loader.New(cfg, store, br, logger)
	l.ConnectShared(ctx)
	l.StartBackEnds(ctx)
	l.StartFrontEnds(ctx)
	defer l.Shutdown(context.Background())
	l.PrintActivePlugins(os.Stdout)
*/
package loader
