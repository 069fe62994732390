// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package redisutil

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClientFromURL creates a new Redis client based on the provided URL.
// The URL scheme can be either `redis` or `redis+sentinel`. An empty URL
// yields a nil client.
func RedisClientFromURL(redisUrl string) (redis.UniversalClient, error) {
	if redisUrl == "" {
		return nil, nil
	}
	u, err := url.Parse(redisUrl)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "redis+sentinel" {
		redisOptions, err := parseFailoverRedisUrl(u)
		if err != nil {
			return nil, err
		}
		return redis.NewFailoverClient(redisOptions), nil
	}
	redisOptions, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(redisOptions), nil
}

// parseFailoverRedisUrl reads a sentinel URL of the form
//
//	redis+sentinel://<user>:<password>@<host1>:<port1>,<host2>:<port2>/<master_name>/<db_number>?dial_timeout=3s&max_retries=2
func parseFailoverRedisUrl(u *url.URL) (*redis.FailoverOptions, error) {
	o := &redis.FailoverOptions{}
	if u.User != nil {
		o.SentinelUsername = u.User.Username()
		o.SentinelPassword, _ = u.User.Password()
	}
	o.SentinelAddrs = sentinelAddresses(u.Host)
	path := strings.FieldsFunc(u.Path, func(r rune) bool {
		return r == '/'
	})
	switch len(path) {
	case 0:
		return nil, fmt.Errorf("redis: master name is required")
	case 1:
		o.MasterName = path[0]
	case 2:
		o.MasterName = path[0]
		db, err := strconv.Atoi(path[1])
		if err != nil {
			return nil, fmt.Errorf("redis: invalid database number: %q", path[1])
		}
		o.DB = db
	default:
		return nil, fmt.Errorf("redis: invalid URL path: %s", u.Path)
	}
	if err := applyFailoverQuery(u.Query(), o); err != nil {
		return nil, err
	}
	return o, nil
}

func sentinelAddresses(hosts string) []string {
	var addresses []string
	for _, hostPort := range strings.Split(hosts, ",") {
		host, port, err := net.SplitHostPort(hostPort)
		if err != nil {
			host = hostPort
		}
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		addresses = append(addresses, net.JoinHostPort(host, port))
	}
	return addresses
}

func parseQueryDuration(name, s string) (time.Duration, error) {
	// plain numbers are seconds
	if i, err := strconv.Atoi(s); err == nil {
		if i <= 0 {
			// disable timeouts
			return -1, nil
		}
		return time.Duration(i) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("redis: invalid %s duration: %w", name, err)
	}
	return d, nil
}

func applyFailoverQuery(q url.Values, o *redis.FailoverOptions) error {
	durations := map[string]*time.Duration{
		"dial_timeout":  &o.DialTimeout,
		"read_timeout":  &o.ReadTimeout,
		"write_timeout": &o.WriteTimeout,
		"pool_timeout":  &o.PoolTimeout,
	}
	ints := map[string]*int{
		"db":          &o.DB,
		"max_retries": &o.MaxRetries,
		"pool_size":   &o.PoolSize,
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := q.Get(k)
		if target, ok := durations[k]; ok {
			d, err := parseQueryDuration(k, v)
			if err != nil {
				return err
			}
			*target = d
			continue
		}
		if target, ok := ints[k]; ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("redis: invalid %s number: %w", k, err)
			}
			*target = i
			continue
		}
		if k == "client_name" {
			o.ClientName = v
			continue
		}
		return fmt.Errorf("redis: unexpected option: %s", k)
	}
	return nil
}
