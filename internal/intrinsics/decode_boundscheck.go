//go:build boundscheck

package intrinsics

const boundsCheckBuildFlag = true
