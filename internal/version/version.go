/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package version reports the version of the go-admission module the binary was built with.
package version

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const modulePath = "github.com/acronis/go-admission"

// PrometheusLabel is the name of the constant label with the module version.
const PrometheusLabel = "go_admission_version"

const unknownVersion = "v0.0.0"

var (
	version     string
	versionOnce sync.Once
)

// Get returns the module version, or v0.0.0 if it cannot be determined.
func Get() string {
	versionOnce.Do(func() {
		buildInfo, _ := debug.ReadBuildInfo()
		if version = fromBuildInfo(buildInfo, modulePath); version == "" {
			version = unknownVersion
		}
	})
	return version
}

// AddPrometheusLabel returns a copy of labels with the module version label added.
func AddPrometheusLabel(labels prometheus.Labels) prometheus.Labels {
	res := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		res[k] = v
	}
	res[PrometheusLabel] = Get()
	return res
}

// fromBuildInfo looks for modPath (optionally with a /vN suffix) as the main module first and then among dependencies.
func fromBuildInfo(buildInfo *debug.BuildInfo, modPath string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modPath) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
