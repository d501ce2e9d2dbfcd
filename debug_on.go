//go:build fgdebug

package framegraph

import "fmt"

// debugBuild enables assertions. Build with -tags fgdebug.
const debugBuild = true

func assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("framegraph: "+format, args...))
	}
}
