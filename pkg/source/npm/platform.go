package npm

import (
	"runtime"
	"strings"
)

var goosToNode = map[string]string{
	"windows": "win32",
	"solaris": "sunos",
}

var goarchToNode = map[string]string{
	"amd64": "x64",
	"386":   "ia32",
	"arm64": "arm64",
	"arm":   "arm",
}

func hostOS() string {
	if os, ok := goosToNode[runtime.GOOS]; ok {
		return os
	}
	return runtime.GOOS
}

func hostCPU() string {
	if cpu, ok := goarchToNode[runtime.GOARCH]; ok {
		return cpu
	}
	return runtime.GOARCH
}

// unsupported returns why a package restricted to the given os and cpu
// lists cannot be installed on current, or "" when it can.
func unsupported(osList, cpuList []string, os, cpu string) string {
	if !allowed(osList, os) {
		return "os " + os + " not in [" + strings.Join(osList, ", ") + "]"
	}
	if !allowed(cpuList, cpu) {
		return "cpu " + cpu + " not in [" + strings.Join(cpuList, ", ") + "]"
	}
	return ""
}

// allowed evaluates an npm os/cpu list. Entries starting with "!" exclude,
// other entries form an allow list.
func allowed(list []string, current string) bool {
	if len(list) == 0 {
		return true
	}
	hasAllow := false
	for _, e := range list {
		if neg, ok := strings.CutPrefix(e, "!"); ok {
			if neg == current {
				return false
			}
			continue
		}
		hasAllow = true
		if e == current || e == "any" {
			return true
		}
	}
	return !hasAllow
}
