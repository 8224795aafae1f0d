//go:build llama

package engine

// cgo link directives for the in-process runtime: an rpath of $ORIGIN so the
// loader finds libllama.so next to the binary, and -L bin for link time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
