package safe

import (
	"PPDirect/logger"
	"PPDirect/tools/errs"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that a failed best-effort notification never crashes the process.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %+v", errs.ErrPanic(r))
			}
		}()
		f()
	}()
}
