// Package config loads the wsbroadcast daemon configuration.
//
// The configuration is stored in wsbroadcast.yaml. Values missing from the
// file take their defaults; WSBROADCAST_* environment variables override
// both.
//
// # Configuration File Structure
//
//	ports: [9001, 9002]
//	host: 127.0.0.1
//	admin:
//	  address: 127.0.0.1:9100
//	server:
//	  max_payload_bytes: 16777216
//	  max_backpressure_bytes: 1048576
//	  send_queue_length: 256
//	  defer_queue_size: 1024
//	  write_timeout: 10s
//	  lock_os_thread: true
//	log:
//	  level: info
//	  format: text
//	metrics:
//	  enabled: true
//	  namespace: wsbroadcast
//	tracing:
//	  enabled: false
//	  tracer_name: wsbroadcast
//
// # Environment
//
//	WSBROADCAST_PORTS=9001,9002
//	WSBROADCAST_ADMIN_ADDRESS=:9100
//	WSBROADCAST_SERVER_WRITE_TIMEOUT=5s
//	WSBROADCAST_LOG_LEVEL=debug
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(path)
//	if err != nil {
//	    return err
//	}
//	if err := cfg.ApplyEnv(nil); err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
