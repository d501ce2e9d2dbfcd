//go:build !fgdebug

package framegraph

const debugBuild = false

func assert(bool, string, ...any) {}
