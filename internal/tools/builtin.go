package tools

import "github.com/calder-io/steward/internal/domain"

// RegisterBuiltins seeds the registry with the stock content-pipeline
// tools so a fresh instance is usable without configuration.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(domain.ToolManifest{
		Name:           "trend.scout",
		Label:          "Trend Scout",
		Dir:            "trend-scout",
		Runtime:        "python3",
		Entrypoint:     "main.py",
		TimeoutSeconds: 120,
		EnvAllowlist:   []string{"YOUTUBE_API_KEY"},
	})
	r.MustRegister(domain.ToolManifest{
		Name:           "script.generate",
		Label:          "Script Writer",
		Dir:            "script-writer",
		Runtime:        "python3",
		Entrypoint:     "generate.py",
		TimeoutSeconds: 300,
	})
	r.MustRegister(domain.ToolManifest{
		Name:           "video.render",
		Label:          "Renderer",
		Dir:            "renderer",
		Runtime:        "node",
		Entrypoint:     "render.js",
		TimeoutSeconds: 1800,
		MaxOutputBytes: 4 << 20,
	})
	r.MustRegister(domain.ToolManifest{
		Name:           "video.publish",
		Label:          "Publisher",
		Dir:            "publisher",
		Runtime:        "python3",
		Entrypoint:     "publish.py",
		TimeoutSeconds: 600,
		EnvAllowlist:   []string{"YOUTUBE_API_KEY", "YOUTUBE_CHANNEL_ID"},
	})
}
