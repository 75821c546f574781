//go:build !linux

package paradox

import "os"

func adviseSequential(*os.File) {}
