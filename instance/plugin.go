package instance

// PluginRegistry is the extension point that replaces the C source's
// GModule-based plugin loader (`maki_plugin_load`/`maki_instance_plugin_method`,
// instance.c). UPnP/STUN/NetworkManager plugin bodies are Non-goals
// (spec.md §1), but the seam is carried per DESIGN NOTES §9's
// "replace module-level globals with an explicit, testable interface"
// guidance, so a future build can supply a real implementation without
// touching Instance.
type PluginRegistry interface {
	// Loaded reports whether a named plugin is both configured enabled
	// and successfully loaded.
	Loaded(name string) bool

	// NetworkSuspended is polled by a future power-management plugin
	// implementation; the default reports false (network always
	// considered up), matching the absence of any such plugin here.
	NetworkSuspended() bool
}

// NoopPluginRegistry is the default PluginRegistry: nothing is ever
// loaded and the network is never considered suspended.
type NoopPluginRegistry struct{}

func (NoopPluginRegistry) Loaded(name string) bool { return false }
func (NoopPluginRegistry) NetworkSuspended() bool  { return false }
