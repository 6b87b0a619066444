package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ FrameCodec         = (*CBORFrameCodec)(nil)
	_ BrokerBackend      = (*CacheBackend)(nil)
	_ ConnectionListener = (*connectionAttempt)(nil)
	_ ConfigProvider     = (*CfgxConfigProvider)(nil)
	_ OptionsResolver    = GoOptionsResolver{}
	_ RawConfigLoader    = EnvConfigLoader{}
	_ RawConfigLoader    = YAMLConfigLoader{}
	_ RawConfigLoader    = LayeredConfigLoader{}

	_ CacheRecord = AccountRecord{}
	_ CacheRecord = AccessTokenRecord{}
	_ CacheRecord = RefreshTokenRecord{}
	_ CacheRecord = IDTokenRecord{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
