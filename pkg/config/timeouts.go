package config

import "time"

// TimeoutProfile bundles the database timeout and pool settings for one
// deployment environment. Staging carries the widest margins: its Cloud SQL
// instance is reached through a VPC connector whose cold-start latency
// dominates connection establishment.
type TimeoutProfile struct {
	// Initialization bounds the whole startup database phase,
	// including migrations and the first pool fill.
	Initialization time.Duration `json:"initialization_timeout"`
	// Connection bounds a single connection attempt.
	Connection time.Duration `json:"connection_timeout"`
	// Query bounds individual statements issued through the timeout helpers.
	Query time.Duration `json:"query_timeout"`
	// PoolAcquire bounds waiting for a free connection from the pool.
	PoolAcquire time.Duration `json:"pool_acquire_timeout"`

	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

var timeoutProfiles = map[Environment]TimeoutProfile{
	EnvDevelopment: {
		Initialization:  30 * time.Second,
		Connection:      10 * time.Second,
		Query:           15 * time.Second,
		PoolAcquire:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	},
	EnvTest: {
		Initialization:  10 * time.Second,
		Connection:      5 * time.Second,
		Query:           5 * time.Second,
		PoolAcquire:     5 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	},
	EnvStaging: {
		Initialization:  95 * time.Second,
		Connection:      45 * time.Second,
		Query:           30 * time.Second,
		PoolAcquire:     60 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	},
	EnvProduction: {
		Initialization:  60 * time.Second,
		Connection:      30 * time.Second,
		Query:           30 * time.Second,
		PoolAcquire:     30 * time.Second,
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: 10 * time.Minute,
	},
}

// ProfileFor returns the timeout profile for an environment. Unknown
// environments fall back to the development profile.
func ProfileFor(env Environment) TimeoutProfile {
	if profile, ok := timeoutProfiles[env]; ok {
		return profile
	}
	return timeoutProfiles[EnvDevelopment]
}

// Profiles returns a copy of all environment timeout profiles
func Profiles() map[Environment]TimeoutProfile {
	out := make(map[Environment]TimeoutProfile, len(timeoutProfiles))
	for env, profile := range timeoutProfiles {
		out[env] = profile
	}
	return out
}
