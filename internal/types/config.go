package types

// Config is the resolved project configuration the engine consumes.
// Collaborators parse the project's JSON config file and hand the
// engine this struct; the engine never parses the file itself.
type Config struct {
	Prefix         string   `json:"prefix"`
	Version        int      `json:"version"`
	EnabledPacks   []string `json:"enabled_packs"`
	WorkflowStates []string `json:"workflow_states"`
}

// Resolve fills in defaults for a zero-value Config.
func (c Config) Resolve() Config {
	if c.Prefix == "" {
		c.Prefix = "iss"
	}
	if len(c.EnabledPacks) == 0 {
		c.EnabledPacks = []string{"core"}
	}
	return c
}
