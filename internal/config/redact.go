package config

// RedactedPassword replaces a configured password in logs and output.
const RedactedPassword = "***"

// Redacted returns a copy of cfg that is safe to log: the password is
// masked and the replication map is not shared.
func Redacted(cfg *Config) Config {
	out := *cfg

	if out.Password != "" {
		out.Password = RedactedPassword
	}

	if cfg.LockReplication != nil {
		out.LockReplication = make(map[string]string, len(cfg.LockReplication))
		for k, v := range cfg.LockReplication {
			out.LockReplication[k] = v
		}
	}

	return out
}
