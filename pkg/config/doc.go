/*
Package config loads Falcon's runtime settings.

Settings come from three layers, later layers overriding earlier ones:
built-in defaults, an optional falcon.yaml config file, and FALCON_*
environment variables (FALCON_DATABASE_PATH, FALCON_CODEX_API_KEY, …).

# Usage

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	store, err := storage.OpenWikiStore(cfg.DatabasePath)

Key groups:
  - Storage: database paths and the wiki storage root
  - Codex: agent API key, invocation timeout, per-pipeline concurrency
  - Queue: worker bound, retry budget, poll interval
  - Sandbox: local temp dirs or the remote provider (use_daytona)
  - Chat: OpenAI key and model for the exploration agent
*/
package config
