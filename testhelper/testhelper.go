// Package testhelper provides the environment checks that skip rules can refer
// to by name.
package testhelper

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// CheckFunc evaluates an environment condition with optional string arguments
type CheckFunc func(args ...string) bool

// Checks maps the names usable in skip.yml to their implementation
var Checks = map[string]CheckFunc{
	"has_paths":       HasPaths,
	"has_dirs":        HasDirs,
	"has_sybase":      func(...string) bool { return HasSybase() },
	"on_head_network": func(...string) bool { return OnHeadNetwork() },
	"is_32_bit":       func(...string) bool { return Is32Bit() },
	"is_windows":      func(...string) bool { return IsWindows() },
	"is_mac":          func(...string) bool { return IsMac() },
	"is_linux":        func(...string) bool { return IsLinux() },
}

// Lookup returns the named check
func Lookup(name string) (CheckFunc, error) {
	fn, ok := Checks[name]
	if !ok {
		return nil, fmt.Errorf("%s must be one of the testhelper checks", name)
	}
	return fn, nil
}

// expandPath expands ~ and environment variables like $SKA or ${SKA}
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// HasPaths reports whether all of the paths exist
func HasPaths(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(expandPath(p)); err != nil {
			return false
		}
	}
	return true
}

// HasDirs reports whether all of the paths exist and are directories
func HasDirs(paths ...string) bool {
	for _, p := range paths {
		info, err := os.Stat(expandPath(p))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

func IsWindows() bool { return runtime.GOOS == "windows" }

func IsMac() bool { return runtime.GOOS == "darwin" }

func IsLinux() bool { return runtime.GOOS == "linux" }

func Is32Bit() bool { return strconv.IntSize == 32 }

// HasSybase reports whether SYBASE and SYBASE_OCS are set and the Sybase python
// library exists under them.
func HasSybase() bool {
	sybase, ok1 := os.LookupEnv("SYBASE")
	ocs, ok2 := os.LookupEnv("SYBASE_OCS")
	if !ok1 || !ok2 {
		return false
	}
	lib := filepath.Join(sybase, ocs, "python", "python34_64r", "lib", "sybpydb.so")
	_, err := os.Stat(lib)
	return err == nil
}

// OnHeadNetwork reports whether the host address is on one of the HEAD subnets
// 131.142.52.x or 131.142.184.x.
func OnHeadNetwork() bool {
	hostname, err := os.Hostname()
	if err != nil {
		return false
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return false
	}
	return isHeadAddress(addrs[0])
}

func isHeadAddress(addr string) bool {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return false
	}
	return ip[0] == 131 && ip[1] == 142 && (ip[2] == 52 || ip[2] == 184)
}
