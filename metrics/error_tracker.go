package metrics

import (
	"fmt"
	"runtime"

	"github.com/initia-labs/soldebug/types"
)

// TrackPanic tracks panic occurrences
func TrackPanic(component string) {
	GetMetrics().Error.PanicsTotal.WithLabelValues(component).Inc()
}

// TrackError tracks errors by component and type
func TrackError(component, errorType string) {
	GetMetrics().Error.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// TrackStandardError labels err with its error type.
func TrackStandardError(component string, err error) {
	if err == nil {
		return
	}
	TrackError(component, string(types.ErrorTypeOf(err)))
}

// RecoverFromPanic recovers from panics and tracks metrics. It must be
// deferred directly. A nil handle re-panics.
func RecoverFromPanic(component string, handle func(r any)) {
	if r := recover(); r != nil {
		pc, _, _, ok := runtime.Caller(1)
		functionName := "unknown"
		if ok {
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				functionName = fn.Name()
			}
		}

		TrackPanic(component)
		TrackError(component, "panic")

		if handle == nil {
			panic(fmt.Sprintf("recovered panic in %s.%s: %v", component, functionName, r))
		}
		handle(r)
	}
}
