package stats

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `stats` package:
// Info (level 0):
//     abnormal events only. Silent on normal operation apart from one time
//     connection events. This includes:
//     - connect errors and drops
//     - dropped (malformed) messages
// Warning:
//     recovered panics
// LogLevelDebug (V(1)):
//     key lifecycle events with connection ids
// LogLevelTrace (V(2)):
//     per message events: send, receive, apply, probe

const LogLevelInfo = glog.Level(0)
const LogLevelDebug = glog.Level(1)
const LogLevelTrace = glog.Level(2)

type LogFunction func(string, ...any)

func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.InfoDepth(1, fmt.Sprintf("[%s]%s", tag, m))
		}
	}
}
