package obs

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "extensao_build_info",
	Help: "Always 1; labels carry the running build.",
}, []string{"version", "commit", "go_version"})

// InitBuildInfo publishes the build labels. An empty or "dev" commit is replaced by the
// VCS revision stamped into the binary when there is one.
func InitBuildInfo(version, commit string) {
	Init()
	if commit == "" || commit == "dev" {
		commit = vcsRevision()
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}
