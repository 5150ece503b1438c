package domain

import "math"

// Module is one dependency compiled into the running binary.
type Module struct {
	Path    string
	Version string
}

// SoftwareInfo is a point-in-time description of the running agent build.
type SoftwareInfo struct {
	Probe       string
	EmittedAt   float64
	GoVersion   string
	OS          string
	Arch        string
	MainPath    string
	MainVersion string
	// Revision is the VCS revision stamped at build time, if any.
	Revision string
	Modules  []Module
}

func (s *SoftwareInfo) ProbeName() string  { return s.Probe }
func (s *SoftwareInfo) Kind() string       { return KindSoftwareInfo }
func (s *SoftwareInfo) Timestamp() float64 { return s.EmittedAt }

func (s *SoftwareInfo) Fields() map[string]any {
	mods := make([]map[string]any, 0, len(s.Modules))
	for _, m := range s.Modules {
		mods = append(mods, map[string]any{"PATH": m.Path, "VERSION": m.Version})
	}
	return map[string]any{
		"PROBE":        s.Probe,
		"TIMESTAMP":    int64(math.Floor(s.EmittedAt)),
		"GO_VERSION":   s.GoVersion,
		"GOOS":         s.OS,
		"GOARCH":       s.Arch,
		"MAIN_MODULE":  s.MainPath,
		"MAIN_VERSION": s.MainVersion,
		"VCS_REVISION": s.Revision,
		"MODULES":      mods,
		"MODULE_COUNT": len(s.Modules),
	}
}
