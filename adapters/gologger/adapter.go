package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	RootLoggerName      = "broker"
	ClientLoggerName    = "broker.client"
	TransportLoggerName = "broker.transport"
	StoreLoggerName     = "broker.store"
	JobsLoggerName      = "broker.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// Loggers holds one named logger per broker component.
type Loggers struct {
	Provider  glog.LoggerProvider
	Client    glog.Logger
	Transport glog.Logger
	Store     glog.Logger
	Jobs      job.Logger
}

// ComponentLoggers resolves the root provider once and names a logger for
// each component from it.
func ComponentLoggers(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, _ := Resolve(RootLoggerName, provider, logger)
	return Loggers{
		Provider:  resolvedProvider,
		Client:    named(resolvedProvider, ClientLoggerName),
		Transport: named(resolvedProvider, TransportLoggerName),
		Store:     named(resolvedProvider, StoreLoggerName),
		Jobs:      ToJobLogger(named(resolvedProvider, JobsLoggerName)),
	}
}

func named(provider glog.LoggerProvider, name string) glog.Logger {
	if provider == nil {
		return glog.Nop()
	}
	return glog.Ensure(provider.GetLogger(name))
}
