package logx

import "fmt"

// CronLogger adapts a Logger to robfig/cron's Logger interface
// (Info(msg, keysAndValues...) / Error(err, msg, keysAndValues...)).
//
// cron logs every schedule/wake at info level; those are demoted to debug.
type CronLogger struct {
	Log Logger
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.Log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append([]Field{Err(err)}, kvFields(keysAndValues)...)
	c.Log.Error("cron: "+msg, fields...)
}

func kvFields(kv []interface{}) []Field {
	out := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			out = append(out, String(key, ""))
			break
		}
		out = append(out, Any(key, kv[i+1]))
	}
	return out
}
